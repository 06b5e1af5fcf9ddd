package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// Ladder maps price to a positive quantity for one symbol. Levels are kept
// sorted by ascending price and never hold zero or negative quantities.
type Ladder struct {
	Symbol  string  `json:"symbol"`
	Country Country `json:"country"`
	Levels  []Level `json:"levels"`
}

func NewLadder(symbol string, country Country) *Ladder {
	return &Ladder{Symbol: symbol, Country: country}
}

func (l *Ladder) find(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(l.Levels), func(i int) bool {
		return l.Levels[i].Price.GreaterThanOrEqual(price)
	})
	return i, i < len(l.Levels) && l.Levels[i].Price.Equal(price)
}

// Add merges qty into the level at price. Non-positive qty is ignored.
func (l *Ladder) Add(price decimal.Decimal, qty int64) {
	if qty <= 0 {
		return
	}
	i, ok := l.find(price)
	if ok {
		l.Levels[i].Quantity += qty
		return
	}
	l.Levels = append(l.Levels, Level{})
	copy(l.Levels[i+1:], l.Levels[i:])
	l.Levels[i] = Level{Price: price, Quantity: qty}
}

// Decrement subtracts qty at price and drops the level once it reaches zero.
// It returns the quantity actually removed.
func (l *Ladder) Decrement(price decimal.Decimal, qty int64) int64 {
	i, ok := l.find(price)
	if !ok || qty <= 0 {
		return 0
	}
	lv := &l.Levels[i]
	if qty >= lv.Quantity {
		removed := lv.Quantity
		l.Levels = append(l.Levels[:i], l.Levels[i+1:]...)
		return removed
	}
	lv.Quantity -= qty
	return qty
}

func (l *Ladder) Quantity(price decimal.Decimal) int64 {
	if i, ok := l.find(price); ok {
		return l.Levels[i].Quantity
	}
	return 0
}

func (l *Ladder) Total() int64 {
	var n int64
	for _, lv := range l.Levels {
		n += lv.Quantity
	}
	return n
}

func (l *Ladder) Empty() bool { return len(l.Levels) == 0 }

// Notional is sum(price * quantity).
func (l *Ladder) Notional() decimal.Decimal {
	sum := decimal.Zero
	for _, lv := range l.Levels {
		sum = sum.Add(lv.Price.Mul(decimal.NewFromInt(lv.Quantity)))
	}
	return sum
}

// Merge adds every level of other into l.
func (l *Ladder) Merge(other *Ladder) {
	for _, lv := range other.Levels {
		l.Add(lv.Price, lv.Quantity)
	}
}

// ScaleTo shrinks the ladder pro-rata so its total does not exceed limit.
// Each level becomes floor(qty * limit / total); levels that round to zero are dropped.
func (l *Ladder) ScaleTo(limit int64) {
	total := l.Total()
	if total <= limit {
		return
	}
	kept := l.Levels[:0]
	for _, lv := range l.Levels {
		lv.Quantity = lv.Quantity * limit / total
		if lv.Quantity > 0 {
			kept = append(kept, lv)
		}
	}
	l.Levels = kept
}

func (l *Ladder) Clone() *Ladder {
	c := &Ladder{Symbol: l.Symbol, Country: l.Country, Levels: make([]Level, len(l.Levels))}
	copy(c.Levels, l.Levels)
	return c
}

// Validate checks the sorted, positive, unique-price shape.
func (l *Ladder) Validate() error {
	for i, lv := range l.Levels {
		if lv.Quantity <= 0 {
			return fmt.Errorf("ladder %s: non-positive quantity %d at %s", l.Symbol, lv.Quantity, lv.Price)
		}
		if i > 0 && !l.Levels[i-1].Price.LessThan(lv.Price) {
			return fmt.Errorf("ladder %s: prices not strictly ascending at %s", l.Symbol, lv.Price)
		}
	}
	return nil
}

// LadderBook holds one ladder per symbol.
type LadderBook map[string]*Ladder

// Ladder returns the ladder for symbol, creating it when absent.
func (b LadderBook) Ladder(symbol string, country Country) *Ladder {
	l, ok := b[symbol]
	if !ok {
		l = NewLadder(symbol, country)
		b[symbol] = l
	}
	return l
}

// Merge adds every ladder of other into b, summing quantities at equal prices.
func (b LadderBook) Merge(other LadderBook) {
	for sym, l := range other {
		b.Ladder(sym, l.Country).Merge(l)
	}
}

// Prune drops empty ladders.
func (b LadderBook) Prune() {
	for sym, l := range b {
		if l.Empty() {
			delete(b, sym)
		}
	}
}

// Symbols returns the book's keys sorted, for deterministic iteration.
func (b LadderBook) Symbols() []string {
	out := make([]string, 0, len(b))
	for s := range b {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
