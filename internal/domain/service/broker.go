package service

import (
	"context"
	"time"

	"AutoTrade/internal/domain/models"
)

// Broker is the account and order surface of the brokerage.
type Broker interface {
	// Holdings returns the current positions for a market.
	Holdings(ctx context.Context, country models.Country) (models.Holdings, error)
	// Fills returns executed orders between from and to inclusive.
	Fills(ctx context.Context, country models.Country, from, to time.Time) ([]models.Fill, error)
	// PlaceReservation submits an order that activates at the next session(s).
	PlaceReservation(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
}

// CalendarSource returns a window of exchange calendar days starting at from.
type CalendarSource interface {
	Calendar(ctx context.Context, from time.Time) ([]models.CalendarDay, error)
}

// HolidayResolver answers trading-day questions per market for order
// expiries and session gating.
type HolidayResolver interface {
	NthOpenDay(ctx context.Context, country models.Country, n int) (time.Time, error)
	IsHoliday(ctx context.Context, country models.Country, date time.Time) (bool, error)
}
