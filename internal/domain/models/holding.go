package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is the broker's view of one position, fetched fresh every session.
type Holding struct {
	Symbol       string
	Name         string
	Country      Country
	Quantity     int64 // total held
	Orderable    int64 // not locked by pending orders
	AverageCost  decimal.Decimal
	CurrentPrice decimal.Decimal
}

// Holdings indexes a balance snapshot by symbol.
type Holdings map[string]Holding

func (h Holdings) Held(symbol string) int64 {
	return h[symbol].Quantity
}

// PriceBar is one daily OHLCV record.
type PriceBar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candidate is one screener hit.
type Candidate struct {
	Symbol   string
	Country  Country
	Category Category
}
