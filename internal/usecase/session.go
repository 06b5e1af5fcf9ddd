package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	domsvc "AutoTrade/internal/domain/service"
	"AutoTrade/internal/service/kis"
	"AutoTrade/internal/services/features"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

// ErrSessionLocked means another process already runs this market today.
var ErrSessionLocked = errors.New("session already running")

type SessionDeps struct {
	Broker      domsvc.Broker
	Holidays    domsvc.HolidayResolver
	Reconciler  *Reconciler
	Executor    *Executor
	Strategies  []Strategy
	Prices      domrepo.PriceHistory
	Assignments domrepo.AssignmentStore
	Lock        domrepo.SessionLock // nil disables locking
	LockTTL     time.Duration
	Notifier    domrepo.Notifier
	Metrics     domrepo.Metrics
	Policy      Policy
	Location    *time.Location
	Log         *applogger.Logger
}

// SessionRunner drives one trading session for a market: holiday gate,
// reconciliation, screening, then buy and sell execution side by side.
type SessionRunner struct {
	d   SessionDeps
	loc *time.Location
	now func() time.Time
}

func NewSessionRunner(d SessionDeps) *SessionRunner {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 2 * time.Hour
	}
	return &SessionRunner{d: d, loc: loc, now: time.Now}
}

// Run executes a full session. A summary is published for every session
// that got past the lock, whatever failed along the way.
func (r *SessionRunner) Run(ctx context.Context, market models.Country, dryRun bool) (*models.SessionSummary, error) {
	return r.RunWithID(ctx, uuid.NewString(), market, dryRun)
}

// RunWithID is Run with a caller-chosen run id.
func (r *SessionRunner) RunWithID(ctx context.Context, runID string, market models.Country, dryRun bool) (*models.SessionSummary, error) {
	today := util.DateOf(r.now(), r.loc)
	sum := &models.SessionSummary{
		RunID:     runID,
		Market:    market,
		Date:      today,
		DryRun:    dryRun || r.d.Policy.DryRun,
		StartedAt: r.now(),
	}
	log := r.d.Log.With(applogger.String("run_id", sum.RunID), applogger.String("market", string(market)))

	if r.d.Lock != nil {
		key := fmt.Sprintf("session:%s:%s", market, util.FormatYMD(today))
		ok, err := r.d.Lock.TryLock(ctx, key, r.d.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("session lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", market, util.FormatYMD(today), ErrSessionLocked)
		}
		defer func() {
			if err := r.d.Lock.Unlock(context.WithoutCancel(ctx), key); err != nil {
				log.Warn("session unlock failed", applogger.Error(err))
			}
		}()
	}

	err := r.run(ctx, market, sum, log)
	if err != nil {
		sum.Err = err.Error()
		r.d.Metrics.RecordError("session")
		var ae *kis.AuthenticationError
		if errors.As(err, &ae) {
			msg := fmt.Sprintf("session %s aborted: broker authentication failed: %v", sum.RunID, err)
			log.Critical("broker authentication failed", applogger.Error(err))
			if aerr := r.d.Notifier.Alert(context.WithoutCancel(ctx), market, msg); aerr != nil {
				log.Error("alert failed", applogger.Error(aerr))
			}
		}
	}
	sum.FinishedAt = r.now()
	r.d.Metrics.RecordLatency("session", sum.FinishedAt.Sub(sum.StartedAt).Seconds())

	if nerr := r.d.Notifier.NotifySummary(context.WithoutCancel(ctx), sum); nerr != nil {
		log.Error("summary notification failed", applogger.Error(nerr))
	}
	log.Info("session finished",
		applogger.Bool("closed", sum.Closed),
		applogger.Int("buy_submitted", sum.Buy.Submitted),
		applogger.Int("sell_submitted", sum.Sell.Submitted),
		applogger.Decimal("buy_notional", sum.Buy.Notional),
		applogger.Decimal("sell_notional", sum.Sell.Notional),
		applogger.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	return sum, err
}

func (r *SessionRunner) run(ctx context.Context, market models.Country, sum *models.SessionSummary, log *applogger.Logger) error {
	closed, err := r.d.Holidays.IsHoliday(ctx, market, sum.Date)
	if err != nil {
		return fmt.Errorf("holiday check: %w", err)
	}
	if closed {
		sum.Closed = true
		log.Info("market closed today")
		return nil
	}

	holdings, err := r.d.Broker.Holdings(ctx, market)
	if err != nil {
		return fmt.Errorf("holdings: %w", err)
	}

	queued, rep, err := r.d.Reconciler.Reconcile(ctx, market, holdings)
	if err != nil {
		if isAuth(err) {
			return err
		}
		log.Error("reconcile failed, selling without queued ladders", applogger.Error(err))
		queued = models.LadderBook{}
	}
	sum.Reconciled = rep.Fills

	buyBooks := map[models.Category]models.LadderBook{}
	sells := models.LadderBook{}
	for sym, l := range queued {
		sells[sym] = l.Clone()
	}
	for _, st := range r.d.Strategies {
		book, errs := st.FilterForBuy(ctx, market)
		buyBooks[st.Category()] = book
		sum.ScreenErrors = append(sum.ScreenErrors, errs...)

		sb, serrs := st.FilterForSell(ctx, holdings)
		sum.ScreenErrors = append(sum.ScreenErrors, serrs...)
		sells.Merge(sb)
	}
	buys := MergeBuys(buyBooks)
	sum.Screened = len(buys)

	if r.d.Policy.LiquidateOrphans {
		sells.Merge(r.orphans(ctx, holdings, log))
	}
	capToHoldings(sells, holdings)

	exec := r.d.Executor.WithDryRun(sum.DryRun)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res, err := exec.ExecuteBuys(ctx, sum.RunID, buys, holdings)
		mu.Lock()
		defer mu.Unlock()
		sum.Buy = res
		if err != nil {
			errs = append(errs, err)
		}
	}()
	go func() {
		defer wg.Done()
		res, err := exec.ExecuteSells(ctx, sum.RunID, sells, holdings)
		mu.Lock()
		defer mu.Unlock()
		sum.Sell = res
		if err != nil {
			errs = append(errs, err)
		}
	}()
	wg.Wait()
	return errors.Join(errs...)
}

// orphans liquidates held symbols no strategy is assigned to, in full at
// the previous close.
func (r *SessionRunner) orphans(ctx context.Context, holdings models.Holdings, log *applogger.Logger) models.LadderBook {
	book := models.LadderBook{}
	assigned, err := r.d.Assignments.Assignments(ctx)
	if err != nil {
		log.Error("orphan check skipped", applogger.Error(err))
		return book
	}
	for sym, h := range holdings {
		if _, ok := assigned[sym]; ok || h.Quantity <= 0 {
			continue
		}
		bars, err := r.d.Prices.Bars(ctx, sym, 2, r.now())
		if err != nil || len(bars) < 2 {
			log.Warn("no previous close for unassigned holding", applogger.String("symbol", sym))
			continue
		}
		prev := features.Last(features.FromBars(bars).Close, 1)
		if !features.Valid(prev) || prev <= 0 {
			continue
		}
		book.Ladder(sym, h.Country).Add(RoundPrice(h.Country, prev), h.Quantity)
		log.Info("liquidating unassigned holding", applogger.String("symbol", sym), applogger.Int64("qty", h.Quantity))
	}
	return book
}

// capToHoldings scales each sell ladder down pro-rata to the held quantity.
func capToHoldings(book models.LadderBook, holdings models.Holdings) {
	for sym, l := range book {
		l.ScaleTo(holdings.Held(sym))
	}
	book.Prune()
}

func isAuth(err error) bool {
	var ae *kis.AuthenticationError
	return errors.As(err, &ae)
}
