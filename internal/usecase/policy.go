package usecase

import (
	"errors"
	"runtime"

	"AutoTrade/internal/domain/models"
)

// ErrDataInsufficient marks a symbol skipped for lack of usable price data.
var ErrDataInsufficient = errors.New("insufficient price data")

// Policy carries the tunable risk and execution parameters of a session.
type Policy struct {
	RiskPct           float64 // fraction of equity risked per position, also the sizing base
	RiskATRMult       float64
	ADTVLimitRatio    float64
	MaxPositionWeight float64
	EquityUSD         float64
	USDKRW            float64
	MinADTVUSD        float64 // KOR threshold, converted with USDKRW
	MinADTVOther      float64

	VIXSymbol      string
	VIXHalt        float64
	AntiChaseRatio float64
	BuyExpiryDays  int
	SellExpiryDays int
	Workers        int

	PrevCloseExtra   bool
	LiquidateOrphans bool
	DryRun           bool
}

func DefaultPolicy() Policy {
	return Policy{
		RiskPct:           0.0051,
		RiskATRMult:       12,
		ADTVLimitRatio:    0.015,
		MaxPositionWeight: 0.15,
		EquityUSD:         100_000,
		USDKRW:            1350,
		MinADTVUSD:        10_000_000,
		MinADTVOther:      20_000_000,
		VIXSymbol:         "VIX",
		VIXHalt:           30,
		AntiChaseRatio:    0.975,
		BuyExpiryDays:     3,
		SellExpiryDays:    1,
		PrevCloseExtra:    true,
		LiquidateOrphans:  true,
	}
}

// Equity is the account equity in the market's currency.
func (p Policy) Equity(c models.Country) float64 {
	if c == models.KOR {
		return p.EquityUSD * p.USDKRW
	}
	return p.EquityUSD
}

func (p Policy) RiskAmount(c models.Country) float64 {
	return p.Equity(c) * p.RiskPct
}

// MinADTV is the liquidity floor in the market's currency.
func (p Policy) MinADTV(c models.Country) float64 {
	if c == models.KOR {
		return p.MinADTVUSD * p.USDKRW
	}
	return p.MinADTVOther
}

func (p Policy) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return min(runtime.NumCPU(), 10)
}

// Ladder construction.
var (
	ladderWeights     = []float64{0.4, 0.3, 0.2, 0.1}
	maxEntryLevels    = 4
	minEntryLevels    = 3
	swingLookback     = 30
	swingFloorRatio   = 0.95
	prevCloseExtraPct = 0.1
)

// Profit tiers fanned out from each buy fill; the rounding remainder lands on
// the first tier.
var profitTiers = []struct {
	Markup float64
	Weight float64
}{
	{1.10, 0.5},
	{1.20, 0.3},
	{1.50, 0.2},
}

// Sell-side cost floor markups.
const (
	costFloorKOR   = 1.002
	costFloorOther = 1.005
)

// VIX sell multipliers: below each bound the matching factor applies.
var vixSellBands = []struct {
	Below  float64
	Factor float64
}{
	{15, 0.8},
	{20, 1.0},
	{25, 1.2},
	{30, 1.5},
}

const vixSellTop = 1.5

// Volatility multipliers by ATR/close.
var volatilityBands = []struct {
	Below  float64
	Factor float64
}{
	{0.02, 1.2},
	{0.03, 1.0},
	{0.05, 0.7},
}

const volatilityTop = 0.5

// Trend multipliers applied to buy sizes.
const (
	bullFactor    = 1.2
	neutralFactor = 1.0
	bearFactor    = 0.6
)
