package holiday

import (
	"context"
	"fmt"
	"time"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/domain/service"
	"AutoTrade/pkg/util"
)

var _ service.HolidayResolver = (*Markets)(nil)

// Markets picks the trading calendar of a market. KOR uses the KRX calendar.
// The brokerage publishes no calendar for overseas exchanges, so those
// sessions are never gated and their expiries count weekdays.
type Markets struct {
	krx *Resolver
	loc *time.Location
	now func() time.Time
}

func NewMarkets(krx *Resolver, loc *time.Location) *Markets {
	if loc == nil {
		loc = time.Local
	}
	return &Markets{krx: krx, loc: loc, now: time.Now}
}

// NthOpenDay returns the nth open day of country strictly after today.
func (m *Markets) NthOpenDay(ctx context.Context, country models.Country, n int) (time.Time, error) {
	if country.Domestic() {
		return m.krx.NthOpenDay(ctx, n)
	}
	if n < 1 {
		return time.Time{}, fmt.Errorf("nth open day: n must be positive, got %d", n)
	}
	return NthWeekday(util.DateOf(m.now(), m.loc), n), nil
}

// IsHoliday reports whether country's exchange is closed on date.
func (m *Markets) IsHoliday(ctx context.Context, country models.Country, date time.Time) (bool, error) {
	if country.Domestic() {
		return m.krx.IsHoliday(ctx, date)
	}
	return false, nil
}

// NthWeekday returns the nth Monday-to-Friday date after day.
func NthWeekday(day time.Time, n int) time.Time {
	for found := 0; found < n; {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			found++
		}
	}
	return day
}
