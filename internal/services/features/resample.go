package features

import "time"

// Weekly aggregates daily bars into weeks ending on Friday.
func (s *Series) Weekly() *Series {
	return s.resample(func(t time.Time) time.Time {
		toFriday := (int(time.Friday) - int(t.Weekday()) + 7) % 7
		y, m, d := t.AddDate(0, 0, toFriday).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	})
}

// Monthly aggregates daily bars into calendar months.
func (s *Series) Monthly() *Series {
	return s.resample(func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	})
}

// resample groups consecutive bars sharing a period key: first open, max
// high, min low, last close, summed volume. Input must be date ordered.
func (s *Series) resample(key func(time.Time) time.Time) *Series {
	out := &Series{}
	var cur time.Time
	for i := range s.Close {
		k := key(s.Dates[i])
		n := len(out.Close)
		if n == 0 || !k.Equal(cur) {
			cur = k
			out.Dates = append(out.Dates, k)
			out.Open = append(out.Open, s.Open[i])
			out.High = append(out.High, s.High[i])
			out.Low = append(out.Low, s.Low[i])
			out.Close = append(out.Close, s.Close[i])
			out.Volume = append(out.Volume, s.Volume[i])
			continue
		}
		if s.High[i] > out.High[n-1] {
			out.High[n-1] = s.High[i]
		}
		if s.Low[i] < out.Low[n-1] {
			out.Low[n-1] = s.Low[i]
		}
		out.Close[n-1] = s.Close[i]
		out.Volume[n-1] += s.Volume[i]
	}
	return out
}
