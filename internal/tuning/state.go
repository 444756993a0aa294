package tuning

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/stocknotify/strategy-backend/internal/technical"
	"github.com/stocknotify/strategy-backend/pkg/types"
)

const (
	stateFile   = "strategy_state.json"
	weightsFile = "signal_weights.json"
	historyFile = "tuning_history.json"

	// stateHistoryCap bounds the inline history inside the state file;
	// the standalone history file keeps more.
	stateHistoryCap = 20
	historyFileCap  = 100
)

// StrategyState is the cross-run tuning state. The self-tuning engine is
// its only writer.
type StrategyState struct {
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	CurrentParams    ParamSet       `json:"current_params"`
	CurrentRegime    Regime         `json:"current_regime"`
	RegimeConfidence float64        `json:"regime_confidence"`
	LastTunedAt      time.Time      `json:"last_tuned_at,omitempty"`
	TuningHistory    []HistoryEntry `json:"tuning_history"`
}

// HistoryEntry is one completed tuning cycle.
type HistoryEntry struct {
	Timestamp     time.Time               `json:"timestamp"`
	Regime        Regime                  `json:"regime"`
	Params        ParamSet                `json:"params"`
	Summary       types.Summary           `json:"summary"`
	ParamChanges  map[string]ParamChange  `json:"param_changes,omitempty"`
	WeightChanges map[string]WeightChange `json:"weight_changes,omitempty"`
}

// Store persists tuning state: strategy state and signal weights under the
// config directory, the long-form history under the data directory.
type Store struct {
	logger    *zap.Logger
	configDir string
	dataDir   string
}

func NewStore(logger *zap.Logger, configDir, dataDir string) *Store {
	return &Store{logger: logger, configDir: configDir, dataDir: dataDir}
}

// LoadState reads the persisted strategy state, returning a fresh default
// state when none exists yet.
func (s *Store) LoadState() (*StrategyState, error) {
	path := filepath.Join(s.configDir, stateFile)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("No strategy state yet, starting fresh", zap.String("path", path))
		return &StrategyState{
			Version:       1,
			CreatedAt:     time.Now().UTC(),
			CurrentParams: DefaultParams(),
			CurrentRegime: RegimeSideways,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy state: %w", err)
	}

	var state StrategyState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse strategy state: %w", err)
	}
	state.CurrentParams = state.CurrentParams.Sanitize()
	if state.CurrentRegime == "" {
		state.CurrentRegime = RegimeSideways
	}
	return &state, nil
}

// SaveState rewrites the strategy state file, trimming the inline history
// to its cap.
func (s *Store) SaveState(state *StrategyState) error {
	if n := len(state.TuningHistory); n > stateHistoryCap {
		state.TuningHistory = state.TuningHistory[n-stateHistoryCap:]
	}
	for i := range state.TuningHistory {
		state.TuningHistory[i].Summary = finiteSummary(state.TuningHistory[i].Summary)
	}
	return s.writeJSON(filepath.Join(s.configDir, stateFile), state)
}

// LoadWeights reads the persisted signal weight table, falling back to the
// neutral defaults when the file is missing. Persisted keys overlay the
// defaults so new signal keys pick up 1.0 automatically.
func (s *Store) LoadWeights() (technical.WeightTable, error) {
	path := filepath.Join(s.configDir, weightsFile)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return technical.DefaultWeights(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read signal weights: %w", err)
	}

	var stored map[string]float64
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("parse signal weights: %w", err)
	}
	weights := technical.DefaultWeights()
	for key := range weights {
		if w, ok := stored[key]; ok {
			weights[key] = w
		}
	}
	return weights, nil
}

// SaveWeights rewrites the signal weight file.
func (s *Store) SaveWeights(weights technical.WeightTable) error {
	return s.writeJSON(filepath.Join(s.configDir, weightsFile), weights)
}

// AppendHistory adds one entry to the long-form tuning history, keeping
// only the most recent entries.
func (s *Store) AppendHistory(entry HistoryEntry) error {
	path := filepath.Join(s.dataDir, historyFile)

	var history []HistoryEntry
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(raw, &history); err != nil {
			s.logger.Warn("Corrupt tuning history, starting over",
				zap.String("path", path),
				zap.Error(err),
			)
			history = nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read tuning history: %w", err)
	}

	entry.Summary = finiteSummary(entry.Summary)
	history = append(history, entry)
	if n := len(history); n > historyFileCap {
		history = history[n-historyFileCap:]
	}
	return s.writeJSON(path, history)
}

func (s *Store) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info("Saved", zap.String("path", path))
	return nil
}

// finiteSummary caps an infinite profit factor so the summary survives
// JSON encoding.
func finiteSummary(s types.Summary) types.Summary {
	if math.IsInf(s.ProfitFactor, 1) {
		s.ProfitFactor = 9999
	}
	return s
}
