package util

import "github.com/shopspring/decimal"

// KRX price bands: a price strictly below Below trades in steps of Tick.
var krxBands = []struct {
	Below int64
	Tick  int64
}{
	{2000, 1},
	{5000, 5},
	{20000, 10},
	{50000, 50},
	{200000, 100},
	{500000, 500},
}

const krxTopTick = 1000

// KRXTick returns the tick size for a price strictly inside its band.
func KRXTick(price decimal.Decimal) decimal.Decimal {
	for _, b := range krxBands {
		if price.LessThan(decimal.NewFromInt(b.Below)) {
			return decimal.NewFromInt(b.Tick)
		}
	}
	return decimal.NewFromInt(krxTopTick)
}

// krxTickDown is the band used when stepping down: a price sitting exactly
// on a band boundary belongs to the lower band.
func krxTickDown(price decimal.Decimal) decimal.Decimal {
	for _, b := range krxBands {
		if price.LessThanOrEqual(decimal.NewFromInt(b.Below)) {
			return decimal.NewFromInt(b.Tick)
		}
	}
	return decimal.NewFromInt(krxTopTick)
}

// RefineKRX snaps a price onto the KRX tick grid.
//
//	steps == 0  nearest tick (half-to-even)
//	steps > 0   move up that many ticks from floor(price/tick)
//	steps < 0   move down that many ticks from ceil(price/tick)
//
// The band is re-evaluated after every step.
func RefineKRX(price decimal.Decimal, steps int) decimal.Decimal {
	if steps == 0 {
		tick := KRXTick(price)
		return price.Div(tick).RoundBank(0).Mul(tick)
	}
	for i := 0; i < abs(steps); i++ {
		if steps > 0 {
			tick := KRXTick(price)
			price = price.Div(tick).Truncate(0).Add(decimal.NewFromInt(1)).Mul(tick)
		} else {
			tick := krxTickDown(price)
			price = price.Div(tick).Ceil().Sub(decimal.NewFromInt(1)).Mul(tick)
		}
	}
	return price.Truncate(0)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
