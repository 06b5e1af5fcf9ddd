package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"AutoTrade/internal/domain/models"
	applogger "AutoTrade/pkg/logger"
)

// ErrSessionBusy is returned when this process is already running the market.
var ErrSessionBusy = errors.New("session in progress")

// Command kinds accepted besides a full session.
const (
	OnlyReconcile = "reconcile"
	OnlyAssign    = "assign"
)

// Dispatcher runs session commands arriving from the API or the command
// topic, at most one per market at a time within this process.
type Dispatcher struct {
	runner     *SessionRunner
	reconciler *Reconciler
	merger     *PriorityMerger
	log        *applogger.Logger

	mu      sync.Mutex
	running map[models.Country]string
	wg      sync.WaitGroup
}

func NewDispatcher(runner *SessionRunner, reconciler *Reconciler, merger *PriorityMerger, log *applogger.Logger) *Dispatcher {
	return &Dispatcher{
		runner:     runner,
		reconciler: reconciler,
		merger:     merger,
		log:        log,
		running:    make(map[models.Country]string),
	}
}

func (d *Dispatcher) acquire(market models.Country, runID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.running[market]; ok {
		return fmt.Errorf("%s run %s: %w", market, cur, ErrSessionBusy)
	}
	d.running[market] = runID
	return nil
}

func (d *Dispatcher) release(market models.Country) {
	d.mu.Lock()
	delete(d.running, market)
	d.mu.Unlock()
}

// Execute runs cmd to completion. Assignment rebuilds are not tied to a
// market and skip the busy check.
func (d *Dispatcher) Execute(ctx context.Context, cmd models.SessionCommand) (*models.SessionSummary, error) {
	if cmd.Only == OnlyAssign {
		_, err := d.merger.Rebuild(ctx)
		return nil, err
	}
	if _, err := models.ParseCountry(string(cmd.Market)); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	if err := d.acquire(cmd.Market, runID); err != nil {
		return nil, err
	}
	defer d.release(cmd.Market)
	return d.execute(ctx, runID, cmd)
}

func (d *Dispatcher) execute(ctx context.Context, runID string, cmd models.SessionCommand) (*models.SessionSummary, error) {
	switch cmd.Only {
	case "":
		return d.runner.RunWithID(ctx, runID, cmd.Market, cmd.DryRun)
	case OnlyReconcile:
		_, _, err := d.reconciler.Run(ctx, cmd.Market)
		return nil, err
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Only)
	}
}

// Start launches a full session in the background and returns its run id.
// ctx must outlive the request that triggered it.
func (d *Dispatcher) Start(ctx context.Context, market models.Country, dryRun bool) (string, error) {
	if _, err := models.ParseCountry(string(market)); err != nil {
		return "", err
	}
	runID := uuid.NewString()
	if err := d.acquire(market, runID); err != nil {
		return "", err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(market)
		if _, err := d.runner.RunWithID(ctx, runID, market, dryRun); err != nil {
			d.log.Error("background session failed",
				applogger.String("run_id", runID),
				applogger.String("market", string(market)),
				applogger.Error(err),
			)
		}
	}()
	return runID, nil
}

// Wait blocks until every background session has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
