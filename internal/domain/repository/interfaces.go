package repository

import (
	"context"
	"time"

	"AutoTrade/internal/domain/models"
)

// PriceHistory reads daily bars, oldest first.
type PriceHistory interface {
	// Bars returns up to n bars ending at or before until.
	Bars(ctx context.Context, symbol string, n int, until time.Time) ([]models.PriceBar, error)
}

// CandidateStore holds the screener's output per category.
type CandidateStore interface {
	// Candidates lists one market's hits; an empty country lists every market.
	Candidates(ctx context.Context, country models.Country) ([]models.Candidate, error)
	ReplaceCandidates(ctx context.Context, country models.Country, category models.Category, symbols []string) error
}

// AssignmentStore holds the symbol to category assignment.
type AssignmentStore interface {
	Assignments(ctx context.Context) (map[string]models.Category, error)
	// ReplaceAssignments swaps the whole table atomically.
	ReplaceAssignments(ctx context.Context, a map[string]models.Category) error
}

// SellQueueStore persists the desired sell ladders and the fills already folded into them.
type SellQueueStore interface {
	LoadBook(ctx context.Context, country models.Country) (models.LadderBook, error)
	Ladder(ctx context.Context, symbol string) (*models.Ladder, error)
	// UnprocessedFills filters out fills already applied by an earlier pass.
	UnprocessedFills(ctx context.Context, fills []models.Fill) ([]models.Fill, error)
	// SaveBook replaces the country's ladders and records processed in one transaction.
	SaveBook(ctx context.Context, country models.Country, book models.LadderBook, processed []models.Fill) error
}

// HolidayCache shares calendar days between processes.
type HolidayCache interface {
	Get(ctx context.Context, date time.Time) (models.CalendarDay, bool, error)
	Put(ctx context.Context, days []models.CalendarDay) error
}

// SessionLock prevents two sessions for the same market and day.
type SessionLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Notifier delivers session summaries and critical alerts.
type Notifier interface {
	NotifySummary(ctx context.Context, s *models.SessionSummary) error
	Alert(ctx context.Context, market models.Country, msg string) error
}

// OrderJournal appends every order decision for audit.
type OrderJournal interface {
	Record(ctx context.Context, recs []models.OrderRecord) error
}

type Metrics interface {
	RecordOrder(side, country, result string)
	RecordBrokerCall(trID, status string)
	RecordRetry(kind string)
	RecordError(kind string)
	RecordNotional(market, side string, value float64)
	RecordLatency(op string, seconds float64)
}
