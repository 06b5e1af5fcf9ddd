package holiday

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/domain/repository"
	"AutoTrade/internal/domain/service"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

// ErrCalendarExhausted is returned when a fetch adds no day the resolver needs.
var ErrCalendarExhausted = errors.New("holiday calendar exhausted")

// maxFetches bounds one NthOpenDay walk.
const maxFetches = 12

// Resolver answers open-day questions from the KRX calendar. Days are
// kept in memory for the life of the process and shared through cache when
// one is configured.
type Resolver struct {
	source service.CalendarSource
	cache  repository.HolidayCache
	loc    *time.Location
	log    *applogger.Logger
	now    func() time.Time

	mu   sync.Mutex
	days map[string]models.CalendarDay
}

func NewResolver(source service.CalendarSource, cache repository.HolidayCache, loc *time.Location, log *applogger.Logger) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{
		source: source,
		cache:  cache,
		loc:    loc,
		log:    log,
		now:    time.Now,
		days:   make(map[string]models.CalendarDay),
	}
}

// NthOpenDay returns the nth open day strictly after today.
func (r *Resolver) NthOpenDay(ctx context.Context, n int) (time.Time, error) {
	if n < 1 {
		return time.Time{}, fmt.Errorf("nth open day: n must be positive, got %d", n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d := util.DateOf(r.now(), r.loc)
	fetches := 0
	for found := 0; found < n; {
		d = d.AddDate(0, 0, 1)
		day, ok := r.lookup(ctx, d)
		if !ok {
			if fetches == maxFetches {
				return time.Time{}, fmt.Errorf("nth open day %d: %w", n, ErrCalendarExhausted)
			}
			fetches++
			if err := r.fetch(ctx, d); err != nil {
				return time.Time{}, err
			}
			if day, ok = r.days[util.FormatYMD(d)]; !ok {
				return time.Time{}, fmt.Errorf("no calendar entry for %s: %w", util.FormatYMD(d), ErrCalendarExhausted)
			}
		}
		if day.Open {
			found++
		}
	}
	return d, nil
}

// IsHoliday reports whether the exchange is closed on date. A date the
// calendar does not list is treated as open.
func (r *Resolver) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := util.DateOf(date, r.loc)
	if day, ok := r.lookup(ctx, d); ok {
		return !day.Open, nil
	}
	if err := r.fetch(ctx, d); err != nil {
		return false, err
	}
	day, ok := r.days[util.FormatYMD(d)]
	if !ok {
		r.log.Warn("date missing from holiday calendar", applogger.Date("date", d))
		return false, nil
	}
	return !day.Open, nil
}

// lookup checks memory, then the shared cache. Cache failures are logged and
// treated as a miss.
func (r *Resolver) lookup(ctx context.Context, d time.Time) (models.CalendarDay, bool) {
	key := util.FormatYMD(d)
	if day, ok := r.days[key]; ok {
		return day, true
	}
	if r.cache == nil {
		return models.CalendarDay{}, false
	}
	day, ok, err := r.cache.Get(ctx, d)
	if err != nil {
		r.log.Warn("holiday cache read failed", applogger.Date("date", d), applogger.Error(err))
		return models.CalendarDay{}, false
	}
	if ok {
		r.days[key] = day
	}
	return day, ok
}

// fetch loads the calendar window starting at from and fails when it adds
// nothing new.
func (r *Resolver) fetch(ctx context.Context, from time.Time) error {
	days, err := r.source.Calendar(ctx, from)
	if err != nil {
		return fmt.Errorf("fetch holiday calendar: %w", err)
	}
	added := 0
	for _, day := range days {
		key := util.FormatYMD(day.Date)
		if _, ok := r.days[key]; !ok {
			added++
		}
		r.days[key] = day
	}
	if added == 0 {
		return fmt.Errorf("calendar from %s: %w", util.FormatYMD(from), ErrCalendarExhausted)
	}
	r.log.Debug("holiday calendar fetched",
		applogger.Date("from", from),
		applogger.Int("days", len(days)),
		applogger.Int("new", added),
	)
	if r.cache != nil {
		if err := r.cache.Put(ctx, days); err != nil {
			r.log.Warn("holiday cache write failed", applogger.Error(err))
		}
	}
	return nil
}
