package repository

import (
	"context"
	"errors"
	"time"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	"AutoTrade/pkg/cache"
	"AutoTrade/pkg/util"
)

// holidayTTL bounds how long a fetched day is trusted.
const holidayTTL = 30 * 24 * time.Hour

// CachedHolidays stores calendar days in the shared cache, one key per day.
type CachedHolidays struct {
	c cache.Service
}

var _ domrepo.HolidayCache = (*CachedHolidays)(nil)

func NewCachedHolidays(c cache.Service) *CachedHolidays {
	return &CachedHolidays{c: c}
}

func holidayKey(d time.Time) string {
	return cache.Key("holiday", util.FormatYMD(d))
}

func (h *CachedHolidays) Get(ctx context.Context, date time.Time) (models.CalendarDay, bool, error) {
	var day models.CalendarDay
	err := h.c.Get(ctx, holidayKey(date), &day)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return day, false, nil
	case err != nil:
		return day, false, err
	}
	return day, true, nil
}

func (h *CachedHolidays) Put(ctx context.Context, days []models.CalendarDay) error {
	var errs []error
	for _, d := range days {
		if err := h.c.Set(ctx, holidayKey(d.Date), d, holidayTTL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CacheLock adapts the cache's lock primitive to SessionLock.
type CacheLock struct {
	c cache.Service
}

var _ domrepo.SessionLock = (*CacheLock)(nil)

func NewCacheLock(c cache.Service) *CacheLock { return &CacheLock{c: c} }

func (l *CacheLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.c.TryLock(ctx, cache.Key("lock", key), ttl)
}

func (l *CacheLock) Unlock(ctx context.Context, key string) error {
	return l.c.Unlock(ctx, cache.Key("lock", key))
}
