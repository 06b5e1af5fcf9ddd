package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is one reservation order ready for submission.
type OrderRequest struct {
	Symbol   string
	Country  Country
	Side     Side
	Price    decimal.Decimal
	Quantity int64
	Expiry   time.Time // last session the reservation stays live
}

func (o OrderRequest) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// OrderResult is the broker's acknowledgement.
type OrderResult struct {
	OrderNo  string
	Exchange string // overseas only
	Code     string // rt_cd
	MsgCode  string
	Message  string
}

// Fill is one executed order from the daily fills inquiry.
type Fill struct {
	OrderNo  string
	Symbol   string
	Country  Country
	Side     Side
	Price    decimal.Decimal
	Quantity int64
	Date     time.Time
}

// OrderOutcome labels journal rows and metrics.
type OrderOutcome string

const (
	OutcomeSubmitted OrderOutcome = "submitted"
	OutcomeSkipped   OrderOutcome = "skipped"
	OutcomeRejected  OrderOutcome = "rejected"
	OutcomeFailed    OrderOutcome = "failed"
	OutcomeDryRun    OrderOutcome = "dry_run"
)

// OrderRecord is one row of the order journal.
type OrderRecord struct {
	ID        string
	RunID     string
	Request   OrderRequest
	Outcome   OrderOutcome
	Reason    string
	OrderNo   string
	CreatedAt time.Time
}
