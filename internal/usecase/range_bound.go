package usecase

import (
	"math"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/services/features"
)

// NewRangeBoundStrategy trades a sideways band: buy near the floor of an
// established range, sell near its ceiling or on a breakdown.
func NewRangeBoundStrategy(d StrategyDeps) *Engine {
	return newEngine(models.Box, rangeRules{}, d)
}

const (
	rangeWidthMin = 0.07
	rangeWidthMax = 0.18
)

type rangeRules struct{}

func (rangeRules) minBars() int { return 120 }

func (rangeRules) entry(s *features.Series) bool {
	bands := features.Bollinger(s.Close, 20, 2)
	upper, lower, mid := features.Last(bands.Upper, 0), features.Last(bands.Lower, 0), features.Last(bands.Mid, 0)
	if !features.Valid(upper) || !features.Valid(lower) || !features.Valid(mid) || mid <= 0 {
		return false
	}
	if w := (upper - lower) / mid; w < rangeWidthMin || w > rangeWidthMax {
		return false
	}
	then := features.Last(bands.Mid, 10)
	if !features.Valid(then) || then <= 0 || math.Abs(mid/then-1) > 0.05 {
		return false
	}
	if !features.RangeDuration(bands, 20, rangeWidthMin, rangeWidthMax) {
		return false
	}
	if !features.FakeoutFilter(s, bands, 3) {
		return false
	}
	if !features.HigherTimeframeOK(s) || !features.OBVRising(s, 3) {
		return false
	}
	return features.BandProximity(s, bands, 0.15, true, 3)
}

func (rangeRules) exit(s *features.Series, atr float64) (exitSignal, bool) {
	bands := features.Bollinger(s.Close, 20, 2)
	closePrice := s.LastClose()
	upper, lower := features.Last(bands.Upper, 0), features.Last(bands.Lower, 0)
	if !features.Valid(upper) || !features.Valid(lower) {
		return exitSignal{}, false
	}
	if atr > 0 && (upper-closePrice)/atr <= 0.3 {
		return exitSignal{Price: upper * 0.99, Fraction: 0.5}, true
	}
	if closePrice < lower {
		return exitSignal{Price: closePrice * 0.995, Fraction: 0.7}, true
	}
	return exitSignal{}, false
}
