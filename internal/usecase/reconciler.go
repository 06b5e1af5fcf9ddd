package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	domsvc "AutoTrade/internal/domain/service"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

// ReconcileReport counts what one pass changed.
type ReconcileReport struct {
	Fills   int   `json:"fills"`
	Symbols int   `json:"symbols"`
	Trimmed int64 `json:"trimmed"`
	Added   int64 `json:"added"`
	Cleared int   `json:"cleared"`
	// Unanchored lists held symbols left short because no price was known.
	Unanchored []string `json:"unanchored,omitempty"`
}

// Reconciler keeps the persisted sell ladders equal to what the broker
// reports as held. Buy fills fan out into profit tiers, sell fills consume
// their level, and any remaining gap is trimmed or topped up.
type Reconciler struct {
	broker domsvc.Broker
	store  domrepo.SellQueueStore
	loc    *time.Location
	log    *applogger.Logger
	now    func() time.Time
}

func NewReconciler(broker domsvc.Broker, store domrepo.SellQueueStore, loc *time.Location, log *applogger.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{broker: broker, store: store, loc: loc, log: log, now: time.Now}
}

// Run fetches holdings itself and reconciles one market.
func (r *Reconciler) Run(ctx context.Context, country models.Country) (models.LadderBook, ReconcileReport, error) {
	holdings, err := r.broker.Holdings(ctx, country)
	if err != nil {
		return nil, ReconcileReport{}, fmt.Errorf("reconcile holdings: %w", err)
	}
	return r.Reconcile(ctx, country, holdings)
}

// Reconcile applies today's unprocessed fills and balances every ladder
// against holdings. It returns the saved book.
func (r *Reconciler) Reconcile(ctx context.Context, country models.Country, holdings models.Holdings) (models.LadderBook, ReconcileReport, error) {
	var rep ReconcileReport

	today := util.DateOf(r.now(), r.loc)
	fills, err := r.broker.Fills(ctx, country, today, today)
	if err != nil {
		return nil, rep, fmt.Errorf("reconcile fills: %w", err)
	}
	fresh, err := r.store.UnprocessedFills(ctx, fills)
	if err != nil {
		return nil, rep, fmt.Errorf("reconcile processed fills: %w", err)
	}
	book, err := r.store.LoadBook(ctx, country)
	if err != nil {
		return nil, rep, fmt.Errorf("reconcile load book: %w", err)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].Date.Equal(fresh[j].Date) {
			return fresh[i].Date.Before(fresh[j].Date)
		}
		return fresh[i].OrderNo < fresh[j].OrderNo
	})
	for _, f := range fresh {
		if f.Quantity <= 0 {
			continue
		}
		switch f.Side {
		case models.Buy:
			addTiers(book.Ladder(f.Symbol, country), f.Price, f.Quantity)
		case models.Sell:
			if l, ok := book[f.Symbol]; ok {
				l.Decrement(f.Price, f.Quantity)
			}
		}
		rep.Fills++
	}

	symbols := map[string]struct{}{}
	for sym := range book {
		symbols[sym] = struct{}{}
	}
	for sym, h := range holdings {
		if h.Quantity > 0 {
			symbols[sym] = struct{}{}
		}
	}
	for sym := range symbols {
		h := holdings[sym]
		if h.Quantity <= 0 {
			if _, ok := book[sym]; ok {
				delete(book, sym)
				rep.Cleared++
			}
			continue
		}
		l := book.Ladder(sym, country)
		switch total := l.Total(); {
		case total > h.Quantity:
			rep.Trimmed += trimLowest(l, total-h.Quantity)
		case total < h.Quantity:
			anchor := h.AverageCost
			if !anchor.IsPositive() {
				anchor = h.CurrentPrice
			}
			if !anchor.IsPositive() && !l.Empty() {
				// top up the dearest persisted level
				l.Add(l.Levels[len(l.Levels)-1].Price, h.Quantity-total)
				rep.Added += h.Quantity - total
				continue
			}
			if !anchor.IsPositive() {
				r.log.Warn("cannot anchor sell tiers", applogger.String("symbol", sym))
				rep.Unanchored = append(rep.Unanchored, sym)
				continue
			}
			addTiers(l, anchor, h.Quantity-total)
			rep.Added += h.Quantity - total
		}
	}
	book.Prune()
	rep.Symbols = len(book)
	sort.Strings(rep.Unanchored)

	if err := r.store.SaveBook(ctx, country, book, fresh); err != nil {
		return nil, rep, fmt.Errorf("reconcile save book: %w", err)
	}
	r.log.Info("sell ladders reconciled",
		applogger.String("country", string(country)),
		applogger.Int("fills", rep.Fills),
		applogger.Int("symbols", rep.Symbols),
		applogger.Int64("trimmed", rep.Trimmed),
		applogger.Int64("added", rep.Added),
		applogger.Int("cleared", rep.Cleared),
		applogger.Int("unanchored", len(rep.Unanchored)),
	)
	return book, rep, nil
}

// addTiers fans qty into the profit tiers above anchor. Shares are floored
// and the remainder goes to the first tier.
func addTiers(l *models.Ladder, anchor decimal.Decimal, qty int64) {
	if qty <= 0 {
		return
	}
	shares := make([]int64, len(profitTiers))
	var assigned int64
	for i, t := range profitTiers {
		shares[i] = int64(math.Floor(float64(qty) * t.Weight))
		assigned += shares[i]
	}
	shares[0] += qty - assigned
	for i, t := range profitTiers {
		l.Add(roundPrice(l.Country, anchor.Mul(decimal.NewFromFloat(t.Markup))), shares[i])
	}
}

// trimLowest removes up to excess shares starting at the cheapest level.
func trimLowest(l *models.Ladder, excess int64) int64 {
	var removed int64
	for excess > 0 && !l.Empty() {
		lv := l.Levels[0]
		n := l.Decrement(lv.Price, excess)
		removed += n
		excess -= n
	}
	return removed
}
