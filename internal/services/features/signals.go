package features

import "math"

// HigherTimeframeOK checks the last completed week and month. The week passes
// when its close is above the weekly SMA20, or, with too few weeks for the
// average, when it did not close lower twice in a row. The month passes when
// its close is at or above the monthly SMA10. Either one is enough.
func HigherTimeframeOK(s *Series) bool {
	if s.Len() < 2 {
		return false
	}
	weeklyOK := false
	if w := s.Weekly(); w.Len() >= 3 {
		prevSMA := Last(SMA(w.Close, 20), 1)
		if Valid(prevSMA) {
			weeklyOK = Last(w.Close, 1) > prevSMA
		} else {
			down1 := Last(w.Close, 1) < Last(w.Close, 2)
			down2 := w.Len() >= 4 && Last(w.Close, 2) < Last(w.Close, 3)
			weeklyOK = !(down1 && down2)
		}
	}
	monthlyOK := false
	if m := s.Monthly(); m.Len() >= 2 {
		prevSMA := Last(SMA(m.Close, 10), 1)
		if Valid(prevSMA) {
			monthlyOK = Last(m.Close, 1) >= prevSMA
		}
	}
	return weeklyOK || monthlyOK
}

// BandProximity reports whether %B was at or below tol on any of the last
// lookback bars. With useLow the bar's price is min(close, low).
func BandProximity(s *Series, b Bands, tol float64, useLow bool, lookback int) bool {
	if lookback < 1 {
		lookback = 1
	}
	for back := 0; back < lookback && back < s.Len(); back++ {
		lower, upper := Last(b.Lower, back), Last(b.Upper, back)
		price := Last(s.Close, back)
		if useLow {
			price = math.Min(price, Last(s.Low, back))
		}
		if !Valid(lower) || !Valid(upper) || !Valid(price) || upper-lower <= 0 {
			continue
		}
		if (price-lower)/(upper-lower) <= tol {
			return true
		}
	}
	return false
}

// OBVRising compares the OBV SMA10 now with its value steps-1 bars back.
func OBVRising(s *Series, steps int) bool {
	sma := SMA(OBV(s.Close, s.Volume), 10)
	if len(sma) < steps+1 {
		return false
	}
	now, then := Last(sma, 0), Last(sma, steps-1)
	return Valid(now) && Valid(then) && now > then
}

// MACDRebound: MACD at or above its signal with a widening gap, after having
// been at or below the signal on one of the five preceding bars.
func MACDRebound(closes []float64) bool {
	m := MACD(closes, 12, 26, 9)
	mc, sc := Last(m.MACD, 0), Last(m.Signal, 0)
	mp, sp := Last(m.MACD, 1), Last(m.Signal, 1)
	if !Valid(mc) || !Valid(sc) || !Valid(mp) || !Valid(sp) {
		return false
	}
	recentlyBelow := false
	for back := 1; back <= 5; back++ {
		mv, sv := Last(m.MACD, back), Last(m.Signal, back)
		if Valid(mv) && Valid(sv) && mv <= sv {
			recentlyBelow = true
			break
		}
	}
	return mc >= sc && (mc-sc) > (mp-sp) && recentlyBelow
}

// RSIReboundBelow: RSI rose on the last bar and is still under bound.
func RSIReboundBelow(closes []float64, n int, bound float64) bool {
	r := RSI(closes, n)
	cur, prev := Last(r, 0), Last(r, 1)
	return Valid(cur) && Valid(prev) && prev < cur && cur < bound
}

// RSIInRange checks lo <= RSI <= hi at the last bar.
func RSIInRange(closes []float64, n int, lo, hi float64) bool {
	v := Last(RSI(closes, n), 0)
	return Valid(v) && lo <= v && v <= hi
}

// RangeDuration reports whether at least 80% of the last days bars had a
// band width (upper-lower)/mid inside [lo, hi].
func RangeDuration(b Bands, days int, lo, hi float64) bool {
	if len(b.Mid) < days {
		return false
	}
	in := 0
	for back := 0; back < days; back++ {
		u, l, m := Last(b.Upper, back), Last(b.Lower, back), Last(b.Mid, back)
		if !Valid(u) || !Valid(l) || !Valid(m) || m <= 0 {
			continue
		}
		if w := (u - l) / m; lo <= w && w <= hi {
			in++
		}
	}
	return float64(in) >= float64(days)*0.8
}

// FakeoutFilter passes unless a recent touch of the lower band (low within 2%)
// was not followed, within confirm bars, by a close 5% above the band. Short
// history passes.
func FakeoutFilter(s *Series, b Bands, confirm int) bool {
	window := confirm + 5
	if s.Len() < window {
		return true
	}
	start := s.Len() - window
	touched := false
	for i := start; i < s.Len()-confirm; i++ {
		if !Valid(b.Lower[i]) || s.Low[i] > b.Lower[i]*1.02 {
			continue
		}
		touched = true
		for j := i + 1; j <= i+confirm && j < s.Len(); j++ {
			if Valid(b.Lower[j]) && s.Close[j] > b.Lower[j]*1.05 {
				return true
			}
		}
	}
	return !touched
}

// Drawdown is the fall of the last close from the highest close of the n bars
// before it. NaN with less history.
func Drawdown(closes []float64, n int) float64 {
	peak := Last(RollingMax(closes, n), 1)
	if !Valid(peak) || peak <= 0 {
		return math.NaN()
	}
	return (peak - Last(closes, 0)) / peak
}

// Rising reports xs[last] > xs[last-1].
func Rising(xs []float64) bool {
	cur, prev := Last(xs, 0), Last(xs, 1)
	return Valid(cur) && Valid(prev) && cur > prev
}
