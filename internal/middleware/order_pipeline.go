package middleware

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	"AutoTrade/internal/service/ratelimit"
)

var (
	ErrDuplicateOrder = errors.New("duplicate order in session")
	ErrThrottled      = errors.New("per-symbol order budget exhausted")
)

// OrderPipeline sits between the executor and the broker. It validates each
// request, drops repeats of the same (symbol, side, price) within a run and
// caps how many orders one symbol may send per run.
type OrderPipeline struct {
	metrics      domrepo.Metrics
	limiter      *ratelimit.Limiter
	maxPerSymbol int

	mu   sync.Mutex
	seen map[string]map[string]struct{} // run id -> order keys
}

type PipelineOption func(*OrderPipeline)

// WithMaxPerSymbol sets the per-run order budget of a symbol and side.
func WithMaxPerSymbol(n int) PipelineOption {
	return func(p *OrderPipeline) {
		if n > 0 {
			p.maxPerSymbol = n
		}
	}
}

func NewOrderPipeline(metrics domrepo.Metrics, limiter *ratelimit.Limiter, opts ...PipelineOption) *OrderPipeline {
	p := &OrderPipeline{
		metrics:      metrics,
		limiter:      limiter,
		maxPerSymbol: 10,
		seen:         make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Admit returns nil when req may go to the broker.
func (p *OrderPipeline) Admit(runID string, req models.OrderRequest) error {
	if err := validateOrder(req); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	key := fmt.Sprintf("%s|%s|%s", req.Symbol, req.Side, req.Price.String())
	p.mu.Lock()
	keys, ok := p.seen[runID]
	if !ok {
		keys = make(map[string]struct{})
		p.seen[runID] = keys
	}
	_, dup := keys[key]
	if !dup {
		keys[key] = struct{}{}
	}
	p.mu.Unlock()
	if dup {
		p.metrics.RecordError("pipeline_duplicate")
		return fmt.Errorf("%s %s @ %s: %w", req.Side, req.Symbol, req.Price, ErrDuplicateOrder)
	}

	// budget refills only across runs; keys are scoped to the run id
	budget := float64(p.maxPerSymbol)
	if !p.limiter.Allow(runID+"|"+req.Symbol+"|"+string(req.Side), budget, 0) {
		p.metrics.RecordError("pipeline_throttle")
		return fmt.Errorf("%s %s: %w", req.Side, req.Symbol, ErrThrottled)
	}
	return nil
}

// Forget drops the state kept for a finished run.
func (p *OrderPipeline) Forget(runID string) {
	p.mu.Lock()
	delete(p.seen, runID)
	p.mu.Unlock()
}

func validateOrder(req models.OrderRequest) error {
	switch {
	case strings.TrimSpace(req.Symbol) == "":
		return fmt.Errorf("order: symbol empty")
	case req.Quantity <= 0:
		return fmt.Errorf("order %s: quantity %d not positive", req.Symbol, req.Quantity)
	case !req.Price.IsPositive():
		return fmt.Errorf("order %s: price %s not positive", req.Symbol, req.Price)
	case req.Side != models.Buy && req.Side != models.Sell:
		return fmt.Errorf("order %s: unknown side %q", req.Symbol, string(req.Side))
	case req.Expiry.IsZero():
		return fmt.Errorf("order %s: expiry missing", req.Symbol)
	}
	if _, err := models.ParseCountry(string(req.Country)); err != nil {
		return fmt.Errorf("order %s: %w", req.Symbol, err)
	}
	return nil
}
