// Package technical computes indicator snapshots and technical scores from
// daily OHLCV series.
package technical

import (
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"
)

// Sma returns the simple moving average series. The output is shorter than
// the input by period-1 values.
func Sma(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(c))
}

// Ema returns the exponential moving average series.
func Ema(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(c))
}

// Rsi returns the relative strength index series.
func Rsi(prices []float64, period int) []float64 {
	if len(prices) < period+1 {
		return nil
	}
	c := helper.SliceToChan(prices)
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(c))
}

// Macd returns the MACD line, signal line and histogram series.
func Macd(prices []float64, fastPeriod, slowPeriod, signalPeriod int) ([]float64, []float64, []float64) {
	if len(prices) < slowPeriod {
		return nil, nil, nil
	}
	c := helper.SliceToChan(prices)
	macd := trend.NewMacdWithPeriod[float64](fastPeriod, slowPeriod, signalPeriod)
	macdLine, signal := macd.Compute(c)

	var (
		macdValues   []float64
		signalValues []float64
		wg           sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		macdValues = helper.ChanToSlice(macdLine)
	}()
	go func() {
		defer wg.Done()
		signalValues = helper.ChanToSlice(signal)
	}()
	wg.Wait()

	n := len(macdValues)
	if len(signalValues) < n {
		n = len(signalValues)
	}
	histogram := make([]float64, n)
	for i := 0; i < n; i++ {
		histogram[i] = macdValues[i] - signalValues[i]
	}
	return macdValues, signalValues, histogram
}

// BBands returns the upper, middle and lower Bollinger bands.
func BBands(prices []float64, period int) ([]float64, []float64, []float64) {
	if len(prices) < period {
		return nil, nil, nil
	}
	c := helper.SliceToChan(prices)
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	upper, middle, lower := bb.Compute(c)

	var (
		upperValues  []float64
		middleValues []float64
		lowerValues  []float64
		wg           sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		upperValues = helper.ChanToSlice(upper)
	}()
	go func() {
		defer wg.Done()
		middleValues = helper.ChanToSlice(middle)
	}()
	go func() {
		defer wg.Done()
		lowerValues = helper.ChanToSlice(lower)
	}()
	wg.Wait()

	return upperValues, middleValues, lowerValues
}

// Atr returns the average true range series.
func Atr(high, low, close []float64, period int) []float64 {
	if len(high) < period || len(low) < period || len(close) < period {
		return nil
	}
	h := helper.SliceToChan(high)
	l := helper.SliceToChan(low)
	c := helper.SliceToChan(close)
	atr := volatility.NewAtrWithPeriod[float64](period)
	return helper.ChanToSlice(atr.Compute(h, l, c))
}

// Stoch returns the stochastic oscillator %K and %D series.
func Stoch(high, low, close []float64) ([]float64, []float64) {
	if len(high) == 0 || len(low) == 0 || len(close) == 0 {
		return nil, nil
	}
	h := helper.SliceToChan(high)
	l := helper.SliceToChan(low)
	c := helper.SliceToChan(close)
	stoch := momentum.NewStochasticOscillator[float64]()
	k, d := stoch.Compute(h, l, c)

	var (
		kValues []float64
		dValues []float64
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		kValues = helper.ChanToSlice(k)
	}()
	go func() {
		defer wg.Done()
		dValues = helper.ChanToSlice(d)
	}()
	wg.Wait()

	return kValues, dValues
}

// Obv returns the on-balance volume series.
func Obv(prices, volumes []float64) []float64 {
	if len(prices) == 0 || len(volumes) == 0 {
		return nil
	}
	p := helper.SliceToChan(prices)
	v := helper.SliceToChan(volumes)
	obv := volume.NewObv[float64]()
	return helper.ChanToSlice(obv.Compute(p, v))
}

// Adx returns the average directional index series. The DMI smoothing uses
// simple moving averages over the period, matching the ATR above.
func Adx(high, low, close []float64, period int) []float64 {
	if len(high) < 2*period+1 || len(high) != len(low) || len(high) != len(close) {
		return nil
	}

	n := len(high)
	posDM := make([]float64, n-1)
	negDM := make([]float64, n-1)
	tr := make([]float64, n-1)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			posDM[i-1] = up
		}
		if down > up && down > 0 {
			negDM[i-1] = down
		}
		tr[i-1] = max(high[i]-low[i], max(abs(high[i]-close[i-1]), abs(low[i]-close[i-1])))
	}

	posSmooth := Sma(posDM, period)
	negSmooth := Sma(negDM, period)
	trSmooth := Sma(tr, period)

	m := min(len(posSmooth), min(len(negSmooth), len(trSmooth)))
	dx := make([]float64, 0, m)
	for i := 0; i < m; i++ {
		if trSmooth[i] == 0 {
			dx = append(dx, 0)
			continue
		}
		posDI := 100 * posSmooth[i] / trSmooth[i]
		negDI := 100 * negSmooth[i] / trSmooth[i]
		sum := posDI + negDI
		if sum == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*abs(posDI-negDI)/sum)
	}
	return Sma(dx, period)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
