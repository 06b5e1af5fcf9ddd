package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/services/features"
	"AutoTrade/pkg/util"
)

// EntryLevels picks up to four support prices below the last close, ordered
// from furthest to nearest. Candidates are ATR projections, the lower
// Bollinger band, SMA20 and the 30-bar swing low; nothing below 95% of the
// swing low is used and consecutive levels are at least
// max(0.5% of close, ATR/4) apart.
func EntryLevels(s *features.Series, atr float64) ([]float64, error) {
	closePrice := s.LastClose()
	if s.Len() < 2 || !features.Valid(closePrice) || closePrice <= 0 || atr <= 0 {
		return nil, ErrDataInsufficient
	}

	swing := features.Last(features.RollingMin(s.Low, swingLookback), 1)
	floor := 0.0
	if features.Valid(swing) && swing > 0 {
		floor = swing * swingFloorRatio
	}

	candidates := []float64{closePrice - 0.5*atr, closePrice - atr, closePrice - 1.5*atr}
	bands := features.Bollinger(s.Close, 20, 2)
	if v := features.Last(bands.Lower, 0); features.Valid(v) {
		candidates = append(candidates, v)
	}
	if v := features.Last(bands.Mid, 0); features.Valid(v) && v < closePrice {
		candidates = append(candidates, v)
	}
	if features.Valid(swing) {
		candidates = append(candidates, swing)
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c > 0 && c >= floor && c < closePrice {
			kept = append(kept, c)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(kept)))

	minGap := math.Max(closePrice*0.005, atr*0.25)
	var levels []float64
	prev := closePrice
	for _, c := range kept {
		if prev-c < minGap {
			continue
		}
		levels = append(levels, c)
		prev = c
		if len(levels) == maxEntryLevels {
			break
		}
	}
	if len(levels) < minEntryLevels && floor > 0 && floor < prev {
		levels = append(levels, floor)
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("no entry level below %.4f: %w", closePrice, ErrDataInsufficient)
	}

	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels, nil
}

// splitWeights returns floor(total*w) per level using the leading ladder
// weights renormalised to len(levels). The remainder goes to the last level.
func splitWeights(levels int, total int64) []int64 {
	if levels <= 0 || total <= 0 {
		return nil
	}
	if levels > len(ladderWeights) {
		levels = len(ladderWeights)
	}
	weights := ladderWeights[:levels]
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	out := make([]int64, levels)
	var assigned int64
	for i, w := range weights {
		out[i] = int64(math.Floor(float64(total) * w / sum))
		assigned += out[i]
	}
	out[levels-1] += total - assigned
	return out
}

// Allocate spreads total shares over levels (furthest first) with 40/30/20/10
// weights. Zero shares are dropped; levels rounding to the same price merge.
func Allocate(symbol string, country models.Country, levels []float64, total int64) *models.Ladder {
	l := models.NewLadder(symbol, country)
	if len(levels) > len(ladderWeights) {
		levels = levels[:len(ladderWeights)]
	}
	for i, qty := range splitWeights(len(levels), total) {
		price := RoundPrice(country, levels[i])
		if qty <= 0 || !price.IsPositive() {
			continue
		}
		l.Add(price, qty)
	}
	return l
}

// RoundPrice snaps a price to the market's grid: the KRX tick for KOR,
// cents elsewhere.
func RoundPrice(country models.Country, p float64) decimal.Decimal {
	return roundPrice(country, decimal.NewFromFloat(p))
}

func roundPrice(country models.Country, d decimal.Decimal) decimal.Decimal {
	if country == models.KOR {
		return util.RefineKRX(d, 0)
	}
	return d.Round(2)
}

// BuildLadder turns a sized position into buy levels. With extra set, a
// further ceil(10%) of size is bid at the previous close.
func BuildLadder(symbol string, country models.Country, s *features.Series, atr float64, size int64, extra bool) (*models.Ladder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("build ladder %s: non-positive size %d", symbol, size)
	}
	levels, err := EntryLevels(s, atr)
	if err != nil {
		return nil, err
	}
	l := Allocate(symbol, country, levels, size)
	if extra {
		if prev := features.Last(s.Close, 1); features.Valid(prev) && prev > 0 {
			l.Add(RoundPrice(country, prev), int64(math.Ceil(float64(size)*prevCloseExtraPct)))
		}
	}
	if l.Empty() {
		return nil, fmt.Errorf("build ladder %s: %w", symbol, ErrDataInsufficient)
	}
	return l, nil
}
