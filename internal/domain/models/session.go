package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalendarDay is one row of the exchange calendar.
type CalendarDay struct {
	Date       time.Time `json:"date"`
	Weekday    string    `json:"weekday"`    // wday_dvsn_cd
	Business   bool      `json:"business"`   // bzdy_yn
	Trading    bool      `json:"trading"`    // tr_day_yn
	Open       bool      `json:"open"`       // opnd_yn
	Settlement bool      `json:"settlement"` // sttl_day_yn
}

// SellQueueEntry is one persisted desired-sell level.
type SellQueueEntry struct {
	Symbol    string
	Country   Country
	Price     decimal.Decimal
	Quantity  int64
	UpdatedAt time.Time
}

// SymbolError is a per-symbol failure collected during screening or execution.
type SymbolError struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
	Err    string `json:"error"`
}

// BatchResult summarises one side of a session.
type BatchResult struct {
	Side      Side            `json:"side"`
	Submitted int             `json:"submitted"`
	Skipped   int             `json:"skipped"`
	Rejected  int             `json:"rejected"`
	Failed    int             `json:"failed"`
	Notional  decimal.Decimal `json:"notional"`
	Errors    []SymbolError   `json:"errors,omitempty"`
}

// SessionSummary is published once per session whatever happened.
type SessionSummary struct {
	RunID        string        `json:"run_id"`
	Market       Country       `json:"market"`
	Date         time.Time     `json:"date"`
	Closed       bool          `json:"closed"` // holiday short-circuit
	DryRun       bool          `json:"dry_run"`
	Buy          BatchResult   `json:"buy"`
	Sell         BatchResult   `json:"sell"`
	Screened     int           `json:"screened"`
	ScreenErrors []SymbolError `json:"screen_errors,omitempty"`
	Reconciled   int           `json:"reconciled"`
	Err          string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// SessionCommand asks a serve-mode process to run a session.
type SessionCommand struct {
	Market Country `json:"market"`
	DryRun bool    `json:"dry_run"`
	Only   string  `json:"only,omitempty"` // "", "reconcile", "assign"
}
