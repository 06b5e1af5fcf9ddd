package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	"AutoTrade/internal/services/features"
	applogger "AutoTrade/pkg/logger"
	"AutoTrade/pkg/util"
)

// historyBars is how much daily history a screen reads per symbol; enough for
// SMA120 and a monthly SMA10.
const historyBars = 300

// Strategy screens one category for buys and manages its held symbols for sells.
type Strategy interface {
	Category() models.Category
	FilterForBuy(ctx context.Context, country models.Country) (models.LadderBook, []models.SymbolError)
	FilterForSell(ctx context.Context, holdings models.Holdings) (models.LadderBook, []models.SymbolError)
}

// rules are the technical parts that differ between categories.
type rules interface {
	minBars() int
	entry(s *features.Series) bool
	exit(s *features.Series, atr float64) (exitSignal, bool)
}

// exitSignal sells Fraction of the holding at Price.
type exitSignal struct {
	Price    float64
	Fraction float64
}

type StrategyDeps struct {
	Prices      domrepo.PriceHistory
	Candidates  domrepo.CandidateStore
	Assignments domrepo.AssignmentStore
	Market      *MarketReader
	Policy      Policy
	Location    *time.Location
	Log         *applogger.Logger
}

// Engine runs the shared screening pipeline around a category's rules.
type Engine struct {
	category    models.Category
	rules       rules
	prices      domrepo.PriceHistory
	candidates  domrepo.CandidateStore
	assignments domrepo.AssignmentStore
	market      *MarketReader
	policy      Policy
	loc         *time.Location
	log         *applogger.Logger
	now         func() time.Time
}

func newEngine(category models.Category, r rules, d StrategyDeps) *Engine {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		category:    category,
		rules:       r,
		prices:      d.Prices,
		candidates:  d.Candidates,
		assignments: d.Assignments,
		market:      d.Market,
		policy:      d.Policy,
		loc:         loc,
		log:         d.Log.With(applogger.String("strategy", string(category))),
		now:         time.Now,
	}
}

func (e *Engine) Category() models.Category { return e.category }

// anchorDate is the date the latest bar must carry: today for KOR, the
// previous calendar day for markets that close overnight.
func (e *Engine) anchorDate(country models.Country) time.Time {
	today := util.DateOf(e.now(), e.loc)
	if country == models.KOR {
		return today
	}
	return today.AddDate(0, 0, -1)
}

func (e *Engine) FilterForBuy(ctx context.Context, country models.Country) (models.LadderBook, []models.SymbolError) {
	book := models.LadderBook{}

	cands, err := e.candidates.Candidates(ctx, country)
	if err != nil {
		return book, []models.SymbolError{{Kind: "candidates", Err: err.Error()}}
	}
	var symbols []string
	for _, c := range cands {
		if c.Category == e.category {
			symbols = append(symbols, c.Symbol)
		}
	}
	if len(symbols) == 0 {
		return book, nil
	}

	mc := e.market.Read(ctx, country, e.now())
	if !mc.BuyAllowed(e.policy.VIXHalt) {
		e.log.Warn("buying halted by vix", applogger.Float64("vix", mc.VIX))
		return book, nil
	}

	anchor := e.anchorDate(country)
	riskAmount := e.policy.RiskAmount(country)
	minADTV := e.policy.MinADTV(country)

	var mu sync.Mutex
	errs := e.forEach(ctx, symbols, func(ctx context.Context, symbol string) error {
		s, err := e.series(ctx, symbol)
		if err != nil {
			return err
		}
		last := s.Dates[s.Len()-1]
		if !util.SameDay(util.DateOf(last, e.loc), anchor) {
			return fmt.Errorf("latest bar %s, want %s: %w", util.FormatYMD(last), util.FormatYMD(anchor), ErrDataInsufficient)
		}
		if s.Len() < e.rules.minBars() {
			return fmt.Errorf("%d bars, need %d: %w", s.Len(), e.rules.minBars(), ErrDataInsufficient)
		}
		adtv := features.ADTV(s)
		if adtv < minADTV || !e.rules.entry(s) {
			return nil
		}

		closePrice := s.LastClose()
		atr := features.MaxATR(s)
		size := e.policy.SizeFor(atr, adtv, closePrice, riskAmount)
		size = AdjustSize(size, mc.TrendFactor()*VolatilityFactor(atr, closePrice))
		if size == 0 {
			return nil
		}
		l, err := BuildLadder(symbol, country, s, atr, size, e.policy.PrevCloseExtra)
		if err != nil {
			return err
		}
		e.log.Info("buy candidate",
			applogger.String("symbol", symbol),
			applogger.Int64("size", size),
			applogger.Int("levels", len(l.Levels)),
			applogger.Float64("atr", atr),
		)
		mu.Lock()
		book[symbol] = l
		mu.Unlock()
		return nil
	})
	return book, errs
}

func (e *Engine) FilterForSell(ctx context.Context, holdings models.Holdings) (models.LadderBook, []models.SymbolError) {
	book := models.LadderBook{}

	assigned, err := e.assignments.Assignments(ctx)
	if err != nil {
		return book, []models.SymbolError{{Kind: "assignments", Err: err.Error()}}
	}
	var symbols []string
	for sym, h := range holdings {
		if assigned[sym] == e.category && h.Quantity > 0 {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return book, nil
	}
	sort.Strings(symbols)

	mult := e.market.Read(ctx, holdings[symbols[0]].Country, e.now()).SellMultiplier()

	var mu sync.Mutex
	errs := e.forEach(ctx, symbols, func(ctx context.Context, symbol string) error {
		s, err := e.series(ctx, symbol)
		if err != nil {
			return err
		}
		sig, ok := e.rules.exit(s, features.MaxATR(s))
		if !ok {
			return nil
		}
		h := holdings[symbol]
		frac := AdjustFraction(sig.Fraction, mult)
		qty := min(h.Quantity, max(1, int64(math.Floor(float64(h.Quantity)*frac))))
		l := models.NewLadder(symbol, h.Country)
		l.Add(RoundPrice(h.Country, sig.Price), qty)
		if l.Empty() {
			return nil
		}
		e.log.Info("sell signal",
			applogger.String("symbol", symbol),
			applogger.Int64("qty", qty),
			applogger.Float64("price", sig.Price),
		)
		mu.Lock()
		book[symbol] = l
		mu.Unlock()
		return nil
	})
	for _, se := range errs {
		e.log.Warn("sell screen failed", applogger.String("symbol", se.Symbol), applogger.String("error", se.Err))
	}
	return book, errs
}

func (e *Engine) series(ctx context.Context, symbol string) (*features.Series, error) {
	bars, err := e.prices.Bars(ctx, symbol, historyBars, e.now())
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars: %w", ErrDataInsufficient)
	}
	return features.FromBars(bars), nil
}

// forEach runs fn over symbols on a bounded pool and collects failures.
func (e *Engine) forEach(ctx context.Context, symbols []string, fn func(context.Context, string) error) []models.SymbolError {
	jobs := make(chan string)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []models.SymbolError
	)
	for i := 0; i < min(e.policy.workers(), len(symbols)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if err := fn(ctx, sym); err != nil {
					mu.Lock()
					errs = append(errs, models.SymbolError{Symbol: sym, Kind: errorKind(err), Err: err.Error()})
					mu.Unlock()
				}
			}
		}()
	}
feed:
	for _, sym := range symbols {
		select {
		case jobs <- sym:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(errs, func(i, j int) bool { return errs[i].Symbol < errs[j].Symbol })
	return errs
}

func errorKind(err error) string {
	if errors.Is(err, ErrDataInsufficient) {
		return "data"
	}
	return "error"
}
