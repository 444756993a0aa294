package technical

import (
	"github.com/stocknotify/strategy-backend/pkg/types"
	"github.com/stocknotify/strategy-backend/pkg/utils"
)

const minAnalyzeBars = 30

// Analyzer computes technical snapshots and weighted scores. The weight
// table is fixed at construction; tuning swaps in a new Analyzer.
type Analyzer struct {
	weights WeightTable
}

// NewAnalyzer creates an analyzer using the given signal weights. A nil
// table behaves as all-1.0 weights.
func NewAnalyzer(weights WeightTable) *Analyzer {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Analyzer{weights: weights}
}

// Weights returns the table the analyzer scores with.
func (a *Analyzer) Weights() WeightTable {
	return a.weights
}

// Analyze computes the technical snapshot for a daily bar series. Returns
// nil when fewer than 30 bars are available.
func (a *Analyzer) Analyze(bars []types.Bar) *Snapshot {
	n := len(bars)
	if n < minAnalyzeBars {
		return nil
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
		volumes[i] = b.Volume.InexactFloat64()
	}

	price := closes[n-1]
	prevPrice := closes[n-2]
	low := lows[n-1]

	s := &Snapshot{
		CurrentPrice: price,
		PrevPrice:    prevPrice,
	}
	if prevPrice != 0 {
		s.PriceChangePct = (price - prevPrice) / prevPrice * 100
	}

	// Moving averages
	sma5 := Sma(closes, 5)
	sma10 := Sma(closes, 10)
	sma20 := Sma(closes, 20)
	s.SMA5 = last(sma5)
	s.SMA10 = last(sma10)
	s.SMA20 = last(sma20)
	if n >= 50 {
		if sma50 := Sma(closes, 50); len(sma50) > 0 {
			s.SMA50 = last(sma50)
			s.HasSMA50 = true
		}
	}
	if s.SMA5 != 0 {
		s.MA5Deviation = (price - s.SMA5) / s.SMA5 * 100
	}
	if s.SMA20 != 0 {
		s.MA20Deviation = (price - s.SMA20) / s.SMA20 * 100
	}

	// Golden / dead cross on the 5- and 20-day averages
	if len(sma5) >= 2 && len(sma20) >= 2 {
		prev5, cur5 := prev(sma5), last(sma5)
		prev20, cur20 := prev(sma20), last(sma20)
		if prev5 <= prev20 && cur5 > cur20 {
			s.GoldenCross = true
		} else if prev5 >= prev20 && cur5 < cur20 {
			s.DeadCross = true
		}
	}
	s.MAAlignment = s.SMA5 > s.SMA10 && s.SMA10 > s.SMA20 && s.SMA20 > 0

	// RSI
	rsi := Rsi(closes, 14)
	s.RSI = 50
	if len(rsi) > 0 {
		s.RSI = last(rsi)
	}
	s.RSIOversold = s.RSI < 30
	s.RSIOverbought = s.RSI > 70
	if len(rsi) >= 2 {
		s.RSIOversoldBounce = prev(rsi) < 30 && s.RSI >= 30
	}

	// MACD
	macdLine, macdSignal, hist := Macd(closes, 12, 26, 9)
	if len(macdLine) > 0 {
		s.MACD = last(macdLine)
	}
	if len(macdSignal) > 0 {
		s.MACDSignal = last(macdSignal)
	}
	if len(hist) > 0 {
		s.MACDHistogram = last(hist)
	}
	if len(hist) >= 2 {
		if prev(hist) < 0 && s.MACDHistogram > 0 {
			s.MACDCrossUp = true
		} else if prev(hist) > 0 && s.MACDHistogram < 0 {
			s.MACDCrossDown = true
		}
	}

	// Bollinger bands
	bbUpper, bbMiddle, bbLower := BBands(closes, 20)
	s.BBUpper, s.BBMiddle, s.BBLower = price, price, price
	if len(bbUpper) > 0 && len(bbMiddle) > 0 && len(bbLower) > 0 {
		s.BBUpper = last(bbUpper)
		s.BBMiddle = last(bbMiddle)
		s.BBLower = last(bbLower)
	}
	s.BBPosition = 0.5
	if s.BBUpper != s.BBLower {
		s.BBPosition = (price - s.BBLower) / (s.BBUpper - s.BBLower)
	}
	if s.BBMiddle > 0 {
		s.BBSqueeze = (s.BBUpper-s.BBLower)/s.BBMiddle < 0.1
	}

	// Volatility and trend strength
	if atr := Atr(highs, lows, closes, 14); len(atr) > 0 {
		s.ATR = last(atr)
	}
	if price > 0 {
		s.ATRPercent = s.ATR / price * 100
	}
	if adx := Adx(highs, lows, closes, 14); len(adx) > 0 {
		s.ADX = last(adx)
	}
	s.StrongTrend = s.ADX > 25

	// Volume
	s.Volume = volumes[n-1]
	volAvg := utils.Mean(volumes[n-20:])
	s.VolumeRatio = 1
	if volAvg > 0 {
		s.VolumeRatio = s.Volume / volAvg
	}
	s.BullishVolume = price > prevPrice && s.VolumeRatio > 1.5
	if obv := Obv(closes, volumes); len(obv) >= 6 {
		s.OBVRising = last(obv) > obv[len(obv)-6]
	}

	// Stochastic
	stochK, stochD := Stoch(highs, lows, closes)
	if len(stochK) > 0 {
		s.StochK = last(stochK)
	}
	if len(stochD) > 0 {
		s.StochD = last(stochD)
	}
	if len(stochK) >= 2 && len(stochD) >= 2 {
		s.StochCrossUp = prev(stochK) <= prev(stochD) && s.StochK > s.StochD
	}
	s.StochOverbought = s.StochK > 80

	// Consecutive up days
	for i := n - 1; i > 0 && closes[i] > closes[i-1]; i-- {
		s.ConsecutiveUp++
	}

	s.Pullback = detectPullback(s, low, price, sma20)
	s.Breakout = detectBreakout(highs, price, s.VolumeRatio)
	s.Divergence = detectDivergence(closes, rsi)
	s.RiskReward = estimateRiskReward(highs, lows, price)

	return s
}

func detectPullback(s *Snapshot, low, price float64, sma20 []float64) PullbackInfo {
	var pb PullbackInfo

	// MA pullbacks only count inside a rising trend.
	rising20 := len(sma20) >= 6 && last(sma20) > sma20[len(sma20)-6]
	if rising20 && s.SMA20 > 0 && low <= s.SMA20*1.01 && price >= s.SMA20*0.98 {
		pb.ToMA20 = true
	}
	if s.HasSMA50 && s.SMA20 > s.SMA50 && s.SMA50 > 0 &&
		low <= s.SMA50*1.01 && price >= s.SMA50*0.98 {
		pb.ToMA50 = true
	}
	if s.BBLower > 0 && low <= s.BBLower && price > s.BBLower {
		pb.ToBBLower = true
	}
	return pb
}

func detectBreakout(highs []float64, price, volumeRatio float64) BreakoutInfo {
	n := len(highs)
	if n < 21 {
		return BreakoutInfo{}
	}
	priorHigh := highs[n-21]
	for _, h := range highs[n-21 : n-1] {
		if h > priorHigh {
			priorHigh = h
		}
	}
	if price <= priorHigh {
		return BreakoutInfo{}
	}
	return BreakoutInfo{
		Detected:        true,
		Type:            "20d_high",
		VolumeConfirmed: volumeRatio > 1.5,
	}
}

func detectDivergence(closes, rsi []float64) DivergenceInfo {
	const window = 10
	if len(rsi) < window || len(closes) < window {
		return DivergenceInfo{}
	}
	c := closes[len(closes)-window:]
	r := rsi[len(rsi)-window:]
	half := window / 2

	cMin1, cMax1 := minMax(c[:half])
	cMin2, cMax2 := minMax(c[half:])
	rMin1, rMax1 := minMax(r[:half])
	rMin2, rMax2 := minMax(r[half:])

	return DivergenceInfo{
		Bullish: cMin2 < cMin1 && rMin2 > rMin1,
		Bearish: cMax2 > cMax1 && rMax2 < rMax1,
	}
}

func estimateRiskReward(highs, lows []float64, price float64) RiskRewardInfo {
	if len(lows) < 10 || len(highs) < 20 {
		return RiskRewardInfo{}
	}
	support := lows[len(lows)-10]
	for _, l := range lows[len(lows)-10:] {
		if l < support {
			support = l
		}
	}
	resistance := highs[len(highs)-20]
	for _, h := range highs[len(highs)-20:] {
		if h > resistance {
			resistance = h
		}
	}
	risk := price - support
	reward := resistance - price
	if risk <= 0 || reward <= 0 {
		return RiskRewardInfo{}
	}
	ratio := reward / risk
	return RiskRewardInfo{Ratio: ratio, Favorable: ratio >= 1.5}
}

// Score converts a snapshot into a weighted technical score in [0, 10].
func (a *Analyzer) Score(s *Snapshot) float64 {
	if s == nil {
		return 0
	}
	w := a.weights
	score := 0.0

	pullback := 0.0
	if s.Pullback.ToMA20 {
		pullback += 1.5
	}
	if s.Pullback.ToMA50 {
		pullback += 1.0
	}
	if s.Pullback.ToBBLower {
		pullback += 1.0
	}
	score += min(pullback, 2.5) * w.Weight(WeightPullback)

	if s.Breakout.Detected {
		breakout := 2.0
		if s.Breakout.VolumeConfirmed {
			breakout += 1.0
		}
		score += breakout * w.Weight(WeightBreakout)
	}

	if s.Divergence.Bullish {
		score += 2.0 * w.Weight(WeightDivergence)
	} else if s.Divergence.Bearish {
		score -= 1.5 * w.Weight(WeightDivergence)
	}

	if s.StochCrossUp {
		if s.StochK < 40 {
			score += 1.5 * w.Weight(WeightStochCross)
		} else {
			score += 0.5 * w.Weight(WeightStochCross)
		}
	}

	if s.GoldenCross {
		score += 1.0 * w.Weight(WeightGoldenCross)
	} else if s.DeadCross {
		score -= 1.5
	}
	if s.MAAlignment {
		score += 0.8 * w.Weight(WeightMAAlignment)
	}
	if s.MACDCrossUp {
		score += 1.0 * w.Weight(WeightMACDCrossUp)
	} else if s.MACDCrossDown {
		score -= 1.0
	}

	if s.BullishVolume {
		score += 1.5 * w.Weight(WeightBullishVolume)
	}
	if s.OBVRising {
		score += 0.5 * w.Weight(WeightOBVRising)
	}

	if s.RSIOversoldBounce {
		score += 0.8 * w.Weight(WeightRSIBounce)
	} else if s.RSIOverbought {
		score -= 0.8
	}

	if s.BBSqueeze && s.Breakout.Detected {
		score += 1.5 * w.Weight(WeightSqueezeBreakout)
	}
	if s.StrongTrend {
		score += 0.5 * w.Weight(WeightStrongTrend)
	}

	if s.RiskReward.Ratio >= 2.0 {
		score += 1.0 * w.Weight(WeightRRBonus)
	} else if s.RiskReward.Ratio >= 1.5 {
		score += 0.5 * w.Weight(WeightRRBonus)
	}

	return utils.Clamp(score, 0, 10)
}

// SellScore computes the weighted exit score and the labels that fired.
func (a *Analyzer) SellScore(s *Snapshot) (float64, []string) {
	if s == nil {
		return 0, nil
	}
	w := a.weights
	score := 0.0
	var labels []string

	if s.DeadCross {
		score += 2.0 * w.Weight(WeightSellDeadCross)
		labels = append(labels, "dead_cross")
	}
	if s.MACDCrossDown {
		score += 1.5 * w.Weight(WeightSellMACDDown)
		labels = append(labels, "macd_cross_down")
	}
	if s.Divergence.Bearish {
		score += 1.5 * w.Weight(WeightSellBearishDiv)
		labels = append(labels, "bearish_divergence")
	}
	if s.RSIOverbought {
		score += 1.0 * w.Weight(WeightSellRSIHot)
		labels = append(labels, "rsi_overbought")
	}
	if s.StochOverbought && s.StochK < s.StochD {
		score += 1.0 * w.Weight(WeightSellStochHot)
		labels = append(labels, "stoch_overbought")
	}
	if s.BBPosition > 0.9 && s.PriceChangePct < 0 {
		score += 1.0 * w.Weight(WeightSellBBReject)
		labels = append(labels, "bb_upper_reject")
	}

	return score, labels
}

func last(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func prev(s []float64) float64 {
	if len(s) < 2 {
		return 0
	}
	return s[len(s)-2]
}

func minMax(s []float64) (lo, hi float64) {
	lo, hi = s[0], s[0]
	for _, v := range s[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
