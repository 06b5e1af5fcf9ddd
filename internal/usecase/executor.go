package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	domsvc "AutoTrade/internal/domain/service"
	"AutoTrade/internal/service/kis"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

// OrderGuard admits or refuses an order before it reaches the broker.
type OrderGuard interface {
	Admit(runID string, req models.OrderRequest) error
}

// Executor turns ladders into reservation orders.
type Executor struct {
	broker   domsvc.Broker
	holidays domsvc.HolidayResolver
	journal  domrepo.OrderJournal
	metrics  domrepo.Metrics
	guard    OrderGuard
	policy   Policy
	log      *applogger.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func NewExecutor(broker domsvc.Broker, holidays domsvc.HolidayResolver, journal domrepo.OrderJournal, metrics domrepo.Metrics, guard OrderGuard, policy Policy, log *applogger.Logger) *Executor {
	return &Executor{
		broker:   broker,
		holidays: holidays,
		journal:  journal,
		metrics:  metrics,
		guard:    guard,
		policy:   policy,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WithDryRun returns a copy of the executor that journals orders without
// sending them.
func (e *Executor) WithDryRun(dry bool) *Executor {
	c := *e
	c.policy.DryRun = dry
	return &c
}

// ExecuteBuys reserves every buy level until the third open day. Levels
// priced above 97.5% of an existing position's average cost are skipped.
// The returned error is set only when the batch had to stop early.
func (e *Executor) ExecuteBuys(ctx context.Context, runID string, book models.LadderBook, holdings models.Holdings) (models.BatchResult, error) {
	b := e.newBatch(runID, models.Buy)
	if len(book) == 0 {
		return b.res, nil
	}
	start := e.now()
	defer func() { e.metrics.RecordLatency("execute_buys", e.now().Sub(start).Seconds()) }()

	countries := make([]models.Country, 0, len(book))
	for _, l := range book {
		countries = append(countries, l.Country)
	}
	expiries, err := e.expiries(ctx, e.policy.BuyExpiryDays, countries)
	if err != nil {
		return b.res, fmt.Errorf("buy expiry: %w", err)
	}
	antiChase := decimal.NewFromFloat(e.policy.AntiChaseRatio)

	for _, sym := range book.Symbols() {
		l := book[sym]
		h, held := holdings[sym]
		for _, lv := range l.Levels {
			req := models.OrderRequest{
				Symbol:   sym,
				Country:  l.Country,
				Side:     models.Buy,
				Price:    lv.Price,
				Quantity: lv.Quantity,
				Expiry:   expiries[l.Country],
			}
			if lv.Quantity <= 0 {
				continue
			}
			if held && h.Quantity > 0 && h.AverageCost.IsPositive() && lv.Price.GreaterThan(h.AverageCost.Mul(antiChase)) {
				b.skip(req, "above average cost")
				continue
			}
			if err := e.place(ctx, b, req); err != nil {
				return e.finish(ctx, b), err
			}
		}
	}
	return e.finish(ctx, b), nil
}

// ExecuteSells reserves sell levels until the next open day. Quantities are
// drawn down from the held amount so the batch never sells more than is
// held, and prices under the average cost are lifted to a small markup.
func (e *Executor) ExecuteSells(ctx context.Context, runID string, book models.LadderBook, holdings models.Holdings) (models.BatchResult, error) {
	b := e.newBatch(runID, models.Sell)
	if len(book) == 0 {
		return b.res, nil
	}
	start := e.now()
	defer func() { e.metrics.RecordLatency("execute_sells", e.now().Sub(start).Seconds()) }()

	countries := make([]models.Country, 0, len(book))
	for sym, l := range book {
		countries = append(countries, sellCountry(l, holdings[sym]))
	}
	expiries, err := e.expiries(ctx, e.policy.SellExpiryDays, countries)
	if err != nil {
		return b.res, fmt.Errorf("sell expiry: %w", err)
	}

	for _, sym := range book.Symbols() {
		l := book[sym]
		h := holdings[sym]
		country := sellCountry(l, h)
		expiry := expiries[country]

		remaining := h.Quantity
		adjusted := models.NewLadder(sym, country)
		for _, lv := range l.Levels {
			qty := min(lv.Quantity, remaining)
			if qty <= 0 {
				b.skip(models.OrderRequest{Symbol: sym, Country: country, Side: models.Sell, Price: lv.Price, Quantity: lv.Quantity, Expiry: expiry}, "exceeds holding")
				continue
			}
			remaining -= qty
			adjusted.Add(costFloor(country, h.AverageCost, lv.Price), qty)
		}

		for _, lv := range adjusted.Levels {
			req := models.OrderRequest{
				Symbol:   sym,
				Country:  country,
				Side:     models.Sell,
				Price:    lv.Price,
				Quantity: lv.Quantity,
				Expiry:   expiry,
			}
			if err := e.place(ctx, b, req); err != nil {
				return e.finish(ctx, b), err
			}
		}
	}
	return e.finish(ctx, b), nil
}

// expiries resolves the nth open day once per market.
func (e *Executor) expiries(ctx context.Context, n int, countries []models.Country) (map[models.Country]time.Time, error) {
	out := make(map[models.Country]time.Time, 1)
	for _, c := range countries {
		if _, ok := out[c]; ok {
			continue
		}
		d, err := e.holidays.NthOpenDay(ctx, c, n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		out[c] = d
	}
	return out, nil
}

func sellCountry(l *models.Ladder, h models.Holding) models.Country {
	if l.Country != "" {
		return l.Country
	}
	return h.Country
}

// costFloor lifts a sell price below the average cost: one tick above
// avg*1.002 on KRX, avg*1.005 in cents elsewhere.
func costFloor(country models.Country, avg, price decimal.Decimal) decimal.Decimal {
	if !avg.IsPositive() || !price.LessThan(avg) {
		return price
	}
	if country == models.KOR {
		return util.RefineKRX(avg.Mul(decimal.NewFromFloat(costFloorKOR)), 1)
	}
	return avg.Mul(decimal.NewFromFloat(costFloorOther)).Round(2)
}

type batch struct {
	runID   string
	res     models.BatchResult
	records []models.OrderRecord
	now     func() time.Time
}

func (e *Executor) newBatch(runID string, side models.Side) *batch {
	return &batch{runID: runID, res: models.BatchResult{Side: side, Notional: decimal.Zero}, now: e.now}
}

func (b *batch) record(req models.OrderRequest, outcome models.OrderOutcome, reason, orderNo string) {
	b.records = append(b.records, models.OrderRecord{
		ID:        uuid.NewString(),
		RunID:     b.runID,
		Request:   req,
		Outcome:   outcome,
		Reason:    reason,
		OrderNo:   orderNo,
		CreatedAt: b.now(),
	})
	switch outcome {
	case models.OutcomeSubmitted, models.OutcomeDryRun:
		b.res.Submitted++
		b.res.Notional = b.res.Notional.Add(req.Notional())
	case models.OutcomeSkipped:
		b.res.Skipped++
	case models.OutcomeRejected:
		b.res.Rejected++
	case models.OutcomeFailed:
		b.res.Failed++
	}
}

func (b *batch) skip(req models.OrderRequest, reason string) {
	b.record(req, models.OutcomeSkipped, reason, "")
}

// place submits one order. Only an authentication failure is returned; every
// other problem is recorded against the symbol and the batch goes on.
func (e *Executor) place(ctx context.Context, b *batch, req models.OrderRequest) error {
	if e.guard != nil {
		if err := e.guard.Admit(b.runID, req); err != nil {
			b.skip(req, err.Error())
			return nil
		}
	}
	fields := []applogger.Field{
		applogger.String("symbol", req.Symbol),
		applogger.String("side", req.Side.String()),
		applogger.Decimal("price", req.Price),
		applogger.Int64("qty", req.Quantity),
		applogger.Date("expiry", req.Expiry),
	}
	if e.policy.DryRun {
		e.log.Info("dry run order", fields...)
		b.record(req, models.OutcomeDryRun, "", "")
		e.metrics.RecordOrder(req.Side.String(), string(req.Country), string(models.OutcomeDryRun))
		return nil
	}

	res, err := e.broker.PlaceReservation(ctx, req)
	var rl *kis.RateLimitError
	if errors.As(err, &rl) {
		e.log.Warn("order rate limited", append(fields, applogger.Duration("retry_after", rl.RetryAfter))...)
		if werr := e.sleep(ctx, rl.RetryAfter); werr != nil {
			err = werr
		} else {
			res, err = e.broker.PlaceReservation(ctx, req)
		}
	}

	var (
		outcome = models.OutcomeSubmitted
		orderNo string
		ae      *kis.AuthenticationError
		rej     *kis.OrderRejectedError
	)
	if res != nil {
		orderNo = res.OrderNo
	}
	switch {
	case err == nil:
		e.log.Info("order reserved", append(fields, applogger.String("order_no", orderNo))...)
		b.record(req, outcome, "", orderNo)
	case errors.As(err, &rej):
		outcome = models.OutcomeRejected
		e.log.Warn("order rejected", append(fields, applogger.Error(err))...)
		b.record(req, outcome, rej.Message, orderNo)
		b.res.Errors = append(b.res.Errors, models.SymbolError{Symbol: req.Symbol, Kind: kis.Kind(err), Err: err.Error()})
	default:
		outcome = models.OutcomeFailed
		e.log.Error("order failed", append(fields, applogger.Error(err))...)
		b.record(req, outcome, err.Error(), orderNo)
		b.res.Errors = append(b.res.Errors, models.SymbolError{Symbol: req.Symbol, Kind: kis.Kind(err), Err: err.Error()})
		e.metrics.RecordError("order_" + kis.Kind(err))
	}
	e.metrics.RecordOrder(req.Side.String(), string(req.Country), string(outcome))

	if errors.As(err, &ae) {
		return fmt.Errorf("place %s %s: %w", req.Side, req.Symbol, err)
	}
	return nil
}

// finish journals the batch and reports its notional.
func (e *Executor) finish(ctx context.Context, b *batch) models.BatchResult {
	if len(b.records) > 0 {
		if err := e.journal.Record(context.WithoutCancel(ctx), b.records); err != nil {
			e.log.Error("order journal write failed", applogger.Error(err), applogger.Int("records", len(b.records)))
		}
		market := string(b.records[0].Request.Country)
		e.metrics.RecordNotional(market, b.res.Side.String(), b.res.Notional.InexactFloat64())
	}
	e.log.Info("batch finished",
		applogger.String("side", b.res.Side.String()),
		applogger.Int("submitted", b.res.Submitted),
		applogger.Int("skipped", b.res.Skipped),
		applogger.Int("rejected", b.res.Rejected),
		applogger.Int("failed", b.res.Failed),
		applogger.Decimal("notional", b.res.Notional),
	)
	return b.res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
