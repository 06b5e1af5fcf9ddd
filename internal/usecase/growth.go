package usecase

import (
	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/services/features"
)

// NewGrowthStrategy buys a 10-20% dip inside a rising long-term trend once
// selling volume has dried up, and exits when the trend breaks.
func NewGrowthStrategy(d StrategyDeps) *Engine {
	return newEngine(models.Growth, growthRules{}, d)
}

type growthRules struct{}

func (growthRules) minBars() int { return 150 }

func (growthRules) entry(s *features.Series) bool {
	sma60 := features.SMA(s.Close, 60)
	sma120 := features.SMA(s.Close, 120)
	if !features.Rising(sma60) || !features.Rising(sma120) {
		return false
	}
	if !(s.LastClose() > features.Last(sma120, 0)) {
		return false
	}
	dd := features.Drawdown(s.Close, 120)
	if !features.Valid(dd) || dd < 0.10 || dd > 0.20 {
		return false
	}
	if !features.RSIInRange(s.Close, 7, 30, 50) || !features.MACDRebound(s.Close) {
		return false
	}

	vol5 := features.SMA(s.Volume, 5)
	vol20 := features.SMA(s.Volume, 20)
	if !(features.Last(vol5, 0) < 0.7*features.Last(vol20, 0)) {
		return false
	}
	for back := 0; back < 3; back++ {
		if avg := features.Last(vol20, back); features.Valid(avg) && features.Last(s.Volume, back) > 1.2*avg {
			return true
		}
	}
	return false
}

func (growthRules) exit(s *features.Series, atr float64) (exitSignal, bool) {
	closePrice := s.LastClose()
	if sma120 := features.Last(features.SMA(s.Close, 120), 0); features.Valid(sma120) && closePrice < sma120 {
		return exitSignal{Price: closePrice * 0.995, Fraction: 0.5}, true
	}
	upper := features.Last(features.Bollinger(s.Close, 20, 2).Upper, 0)
	if atr > 0 && features.Valid(upper) && closePrice >= 0.98*upper {
		return exitSignal{Price: upper * 1.01, Fraction: 0.3}, true
	}
	return exitSignal{}, false
}
