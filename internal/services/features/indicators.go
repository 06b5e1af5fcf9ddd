package features

import (
	"math"
	"time"

	"AutoTrade/internal/domain/models"
)

// Series is a column view of daily bars, oldest first. Indicator outputs are
// aligned with it and hold NaN until their window fills.
type Series struct {
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

func FromBars(bars []models.PriceBar) *Series {
	s := &Series{
		Dates:  make([]time.Time, len(bars)),
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Dates[i] = b.Date
		s.Open[i] = b.Open
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Close[i] = b.Close
		s.Volume[i] = b.Volume
	}
	return s
}

func (s *Series) Len() int { return len(s.Close) }

// LastClose returns the latest close or NaN when empty.
func (s *Series) LastClose() float64 { return Last(s.Close, 0) }

// Valid reports whether x is a usable number.
func Valid(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Last returns xs[len-1-back], or NaN when out of range.
func Last(xs []float64, back int) float64 {
	i := len(xs) - 1 - back
	if i < 0 || i >= len(xs) {
		return math.NaN()
	}
	return xs[i]
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the rolling mean over n values. A window containing NaN yields NaN.
func SMA(xs []float64, n int) []float64 {
	out := nanSlice(len(xs))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(xs); i++ {
		sum := 0.0
		ok := true
		for _, v := range xs[i-n+1 : i+1] {
			if !Valid(v) {
				ok = false
				break
			}
			sum += v
		}
		if ok {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// RollingStd is the population standard deviation over n values.
func RollingStd(xs []float64, n int) []float64 {
	out := nanSlice(len(xs))
	mean := SMA(xs, n)
	for i := n - 1; i < len(xs); i++ {
		if !Valid(mean[i]) {
			continue
		}
		ss := 0.0
		for _, v := range xs[i-n+1 : i+1] {
			d := v - mean[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(n))
	}
	return out
}

// RollingMax is the maximum over n values.
func RollingMax(xs []float64, n int) []float64 {
	out := nanSlice(len(xs))
	for i := n - 1; i >= 0 && i < len(xs); i++ {
		m := math.Inf(-1)
		for _, v := range xs[i-n+1 : i+1] {
			if Valid(v) && v > m {
				m = v
			}
		}
		if !math.IsInf(m, -1) {
			out[i] = m
		}
	}
	return out
}

// RollingMin is the minimum over n values.
func RollingMin(xs []float64, n int) []float64 {
	out := nanSlice(len(xs))
	for i := n - 1; i >= 0 && i < len(xs); i++ {
		m := math.Inf(1)
		for _, v := range xs[i-n+1 : i+1] {
			if Valid(v) && v < m {
				m = v
			}
		}
		if !math.IsInf(m, 1) {
			out[i] = m
		}
	}
	return out
}

// ewm is an exponentially weighted mean with y0 seeded from the first valid
// value, yt = (1-alpha)*y(t-1) + alpha*xt. Outputs stay NaN until minPeriods
// valid observations were seen.
func ewm(xs []float64, alpha float64, minPeriods int) []float64 {
	out := nanSlice(len(xs))
	seen := 0
	var y float64
	for i, x := range xs {
		if !Valid(x) {
			continue
		}
		if seen == 0 {
			y = x
		} else {
			y = (1-alpha)*y + alpha*x
		}
		seen++
		if seen >= minPeriods {
			out[i] = y
		}
	}
	return out
}

// EMA uses span n, alpha = 2/(n+1).
func EMA(xs []float64, n int) []float64 {
	return ewm(xs, 2/float64(n+1), n)
}

// Bands holds Bollinger bands.
type Bands struct {
	Upper []float64
	Mid   []float64
	Lower []float64
}

// Bollinger computes mid = SMA(n) and mid ± k population standard deviations.
func Bollinger(closes []float64, n int, k float64) Bands {
	mid := SMA(closes, n)
	std := RollingStd(closes, n)
	b := Bands{Upper: nanSlice(len(closes)), Mid: mid, Lower: nanSlice(len(closes))}
	for i := range closes {
		if Valid(mid[i]) && Valid(std[i]) {
			b.Upper[i] = mid[i] + k*std[i]
			b.Lower[i] = mid[i] - k*std[i]
		}
	}
	return b
}

// RSI is Wilder's relative strength index over n periods.
func RSI(closes []float64, n int) []float64 {
	up := make([]float64, len(closes))
	down := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			up[i] = d
		} else if d < 0 {
			down[i] = -d
		}
	}
	alpha := 1 / float64(n)
	eu := ewm(up, alpha, n)
	ed := ewm(down, alpha, n)
	out := nanSlice(len(closes))
	for i := range closes {
		if !Valid(eu[i]) || !Valid(ed[i]) {
			continue
		}
		if ed[i] == 0 {
			out[i] = 100
			continue
		}
		out[i] = 100 - 100/(1+eu[i]/ed[i])
	}
	return out
}

// MACDLines holds the MACD line and its signal.
type MACDLines struct {
	MACD   []float64
	Signal []float64
}

func MACD(closes []float64, fast, slow, signal int) MACDLines {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	line := nanSlice(len(closes))
	for i := range closes {
		if Valid(f[i]) && Valid(s[i]) {
			line[i] = f[i] - s[i]
		}
	}
	return MACDLines{MACD: line, Signal: EMA(line, signal)}
}

// ATR is Wilder's average true range over n periods. The first value is the
// plain mean of the first n true ranges.
func ATR(high, low, close []float64, n int) []float64 {
	out := nanSlice(len(close))
	if n <= 0 || len(close) < n {
		return out
	}
	tr := make([]float64, len(close))
	for i := range close {
		tr[i] = high[i] - low[i]
		if i > 0 {
			tr[i] = math.Max(tr[i], math.Abs(high[i]-close[i-1]))
			tr[i] = math.Max(tr[i], math.Abs(low[i]-close[i-1]))
		}
	}
	sum := 0.0
	for _, v := range tr[:n] {
		sum += v
	}
	out[n-1] = sum / float64(n)
	for i := n; i < len(close); i++ {
		out[i] = (out[i-1]*float64(n-1) + tr[i]) / float64(n)
	}
	return out
}

// MaxATR returns max(ATR5, ATR10, ATR20) at the last bar, or 0 when any is
// unavailable or non-positive.
func MaxATR(s *Series) float64 {
	best := 0.0
	for _, n := range []int{5, 10, 20} {
		v := Last(ATR(s.High, s.Low, s.Close, n), 0)
		if !Valid(v) || v <= 0 {
			return 0
		}
		best = math.Max(best, v)
	}
	return best
}

// OBV is on-balance volume. A down close subtracts the day's volume, anything
// else adds it.
func OBV(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	acc := 0.0
	for i := range closes {
		if i > 0 && closes[i] < closes[i-1] {
			acc -= volumes[i]
		} else {
			acc += volumes[i]
		}
		out[i] = acc
	}
	return out
}

// ADTV is the 50-day mean volume times the last close, or 0 with less history.
func ADTV(s *Series) float64 {
	v := Last(SMA(s.Volume, 50), 0)
	if !Valid(v) {
		return 0
	}
	return v * s.LastClose()
}
