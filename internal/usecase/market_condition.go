package usecase

import (
	"context"
	"math"
	"time"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	"AutoTrade/internal/services/features"
	applogger "AutoTrade/pkg/logger"
)

type Trend string

const (
	Bull    Trend = "bull"
	Neutral Trend = "neutral"
	Bear    Trend = "bear"
)

// MarketCondition is the market-wide read taken once per session.
type MarketCondition struct {
	VIX    float64
	HasVIX bool
	Trend  Trend
}

// BuyAllowed is false once VIX reaches halt. A missing VIX allows buying.
func (m MarketCondition) BuyAllowed(halt float64) bool {
	return !m.HasVIX || m.VIX < halt
}

// SellMultiplier scales sell fractions up as VIX rises.
func (m MarketCondition) SellMultiplier() float64 {
	if !m.HasVIX {
		return 1
	}
	for _, b := range vixSellBands {
		if m.VIX < b.Below {
			return b.Factor
		}
	}
	return vixSellTop
}

func (m MarketCondition) TrendFactor() float64 {
	switch m.Trend {
	case Bull:
		return bullFactor
	case Bear:
		return bearFactor
	}
	return neutralFactor
}

// VolatilityFactor shrinks positions in names with a wide daily range.
func VolatilityFactor(atr, close float64) float64 {
	if atr <= 0 || close <= 0 {
		return 1
	}
	r := atr / close
	for _, b := range volatilityBands {
		if r < b.Below {
			return b.Factor
		}
	}
	return volatilityTop
}

// AdjustSize applies a multiplier, keeping at least one share of a non-empty position.
func AdjustSize(size int64, m float64) int64 {
	if size <= 0 {
		return 0
	}
	return max(1, int64(math.Floor(float64(size)*m)))
}

// AdjustFraction applies a multiplier to a sell fraction, capped at 1.
func AdjustFraction(base, m float64) float64 {
	return math.Min(1, base*m)
}

// indexSymbols are the benchmarks read for the trend.
var indexSymbols = map[models.Country]string{
	models.USA: "^GSPC",
	models.KOR: "KS11",
}

// MarketReader derives the market condition from stored price history.
type MarketReader struct {
	prices    domrepo.PriceHistory
	vixSymbol string
	log       *applogger.Logger
}

func NewMarketReader(prices domrepo.PriceHistory, vixSymbol string, log *applogger.Logger) *MarketReader {
	if vixSymbol == "" {
		vixSymbol = "VIX"
	}
	return &MarketReader{prices: prices, vixSymbol: vixSymbol, log: log}
}

// Read never fails: missing data degrades to a neutral, unrestricted condition.
func (r *MarketReader) Read(ctx context.Context, country models.Country, until time.Time) MarketCondition {
	mc := MarketCondition{Trend: Neutral}

	bars, err := r.prices.Bars(ctx, r.vixSymbol, 1, until)
	switch {
	case err != nil:
		r.log.Warn("vix unavailable", applogger.Error(err))
	case len(bars) > 0 && bars[len(bars)-1].Close > 0:
		mc.VIX = bars[len(bars)-1].Close
		mc.HasVIX = true
	}

	if sym, ok := indexSymbols[country]; ok {
		bars, err := r.prices.Bars(ctx, sym, 200, until)
		if err != nil {
			r.log.Warn("index history unavailable", applogger.String("index", sym), applogger.Error(err))
		} else {
			mc.Trend = trendOf(bars)
		}
	}

	r.log.Info("market condition",
		applogger.String("country", string(country)),
		applogger.Float64("vix", mc.VIX),
		applogger.Bool("has_vix", mc.HasVIX),
		applogger.String("trend", string(mc.Trend)),
	)
	return mc
}

// trendOf orders close, SMA50 and SMA200. An unavailable average stands in as
// the close itself.
func trendOf(bars []models.PriceBar) Trend {
	if len(bars) < 50 {
		return Neutral
	}
	s := features.FromBars(bars)
	price := s.LastClose()
	sma50 := features.Last(features.SMA(s.Close, 50), 0)
	sma200 := features.Last(features.SMA(s.Close, 200), 0)
	if !features.Valid(sma50) {
		sma50 = price
	}
	if !features.Valid(sma200) {
		sma200 = price
	}
	switch {
	case price > sma50 && sma50 > sma200:
		return Bull
	case price < sma50 && sma50 < sma200:
		return Bear
	}
	return Neutral
}
