// Package config loads runtime configuration for the strategy backend.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the runtime settings shared by the backtest and tuning CLIs.
type Config struct {
	Pool           string  `mapstructure:"pool"`
	DataDir        string  `mapstructure:"data_dir"`
	ConfigDir      string  `mapstructure:"config_dir"`
	ExportDir      string  `mapstructure:"export_dir"`
	BacktestDays   int     `mapstructure:"backtest_days"`
	TuningDays     int     `mapstructure:"tuning_days"`
	Iterations     int     `mapstructure:"iterations"`
	MinImprovement float64 `mapstructure:"min_improvement"`
	LogLevel       string  `mapstructure:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pool:           "nasdaq100",
		DataDir:        "./data",
		ConfigDir:      "./config",
		ExportDir:      "./data/backtest",
		BacktestDays:   90,
		TuningDays:     504,
		Iterations:     10,
		MinImprovement: 5.0,
		LogLevel:       "info",
	}
}

// Load reads strategy.yaml from the given directory, falling back to the
// built-in defaults for anything not set. Environment variables prefixed
// with STRATEGY_ override file values.
func Load(dir string) (Config, error) {
	v := viper.New()
	def := Default()

	v.SetDefault("pool", def.Pool)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("config_dir", def.ConfigDir)
	v.SetDefault("export_dir", def.ExportDir)
	v.SetDefault("backtest_days", def.BacktestDays)
	v.SetDefault("tuning_days", def.TuningDays)
	v.SetDefault("iterations", def.Iterations)
	v.SetDefault("min_improvement", def.MinImprovement)
	v.SetDefault("log_level", def.LogLevel)

	v.SetConfigName("strategy")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("STRATEGY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, anything else is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
