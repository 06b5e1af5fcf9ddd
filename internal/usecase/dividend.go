package usecase

import (
	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/services/features"
)

// NewDividendStrategy buys pullbacks to the lower band in an intact higher
// timeframe and trims near the upper band or on an overbought RSI roll-over.
func NewDividendStrategy(d StrategyDeps) *Engine {
	return newEngine(models.Dividend, dividendRules{}, d)
}

type dividendRules struct{}

func (dividendRules) minBars() int { return 100 }

func (dividendRules) entry(s *features.Series) bool {
	if !features.HigherTimeframeOK(s) {
		return false
	}
	bands := features.Bollinger(s.Close, 20, 2)
	if !features.BandProximity(s, bands, 0.10, true, 3) {
		return false
	}
	if !features.OBVRising(s, 3) {
		return false
	}
	if !features.RSIReboundBelow(s.Close, 7, 30) && !features.MACDRebound(s.Close) {
		return false
	}
	return s.LastClose() > features.Last(s.Low, 1)
}

func (dividendRules) exit(s *features.Series, atr float64) (exitSignal, bool) {
	bands := features.Bollinger(s.Close, 20, 2)
	closePrice := s.LastClose()
	upper, mid := features.Last(bands.Upper, 0), features.Last(bands.Mid, 0)
	if !features.Valid(upper) || !features.Valid(closePrice) {
		return exitSignal{}, false
	}
	if atr > 0 && (upper-closePrice)/atr <= 0.5 {
		return exitSignal{Price: closePrice * 1.005, Fraction: 0.5}, true
	}
	rsi := features.RSI(s.Close, 7)
	cur, prev := features.Last(rsi, 0), features.Last(rsi, 1)
	if closePrice > mid && features.Valid(cur) && features.Valid(prev) && cur > 70 && cur < prev {
		return exitSignal{Price: closePrice * 1.003, Fraction: 0.3}, true
	}
	return exitSignal{}, false
}
