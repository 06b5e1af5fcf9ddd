package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"AutoTrade/internal/domain/models"
	applogger "AutoTrade/pkg/logger"
)

var kst = time.FixedZone("KST", 9*3600)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flatBars builds n daily bars ending on last with a constant close.
func flatBars(symbol string, n int, last time.Time, close float64) []models.PriceBar {
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{
			Symbol: symbol,
			Date:   last.AddDate(0, 0, i-n+1),
			Open:   close,
			High:   close + 1,
			Low:    close - 1,
			Close:  close,
			Volume: 1000,
		}
	}
	return bars
}

type fakePrices struct {
	bars map[string][]models.PriceBar
	err  error
}

func (f *fakePrices) Bars(_ context.Context, symbol string, n int, until time.Time) ([]models.PriceBar, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.PriceBar
	for _, b := range f.bars[symbol] {
		if !b.Date.After(until) {
			out = append(out, b)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

type fakeCandidates struct {
	list []models.Candidate
}

func (f *fakeCandidates) Candidates(_ context.Context, country models.Country) ([]models.Candidate, error) {
	var out []models.Candidate
	for _, c := range f.list {
		if country == "" || c.Country == country {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCandidates) ReplaceCandidates(_ context.Context, country models.Country, category models.Category, symbols []string) error {
	kept := f.list[:0]
	for _, c := range f.list {
		if c.Country != country || c.Category != category {
			kept = append(kept, c)
		}
	}
	for _, s := range symbols {
		kept = append(kept, models.Candidate{Symbol: s, Country: country, Category: category})
	}
	f.list = kept
	return nil
}

type fakeAssignments struct {
	m        map[string]models.Category
	replaced int
}

func (f *fakeAssignments) Assignments(context.Context) (map[string]models.Category, error) {
	out := make(map[string]models.Category, len(f.m))
	for k, v := range f.m {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAssignments) ReplaceAssignments(_ context.Context, a map[string]models.Category) error {
	f.m = a
	f.replaced++
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	holdings  models.Holdings
	fills     []models.Fill
	placed    []models.OrderRequest
	results   []error // consumed per PlaceReservation call; nil once exhausted
	holdErr   error
	holdCalls int
}

func (f *fakeBroker) Holdings(context.Context, models.Country) (models.Holdings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdCalls++
	if f.holdErr != nil {
		return nil, f.holdErr
	}
	return f.holdings, nil
}

func (f *fakeBroker) Fills(context.Context, models.Country, time.Time, time.Time) ([]models.Fill, error) {
	return append([]models.Fill(nil), f.fills...), nil
}

func (f *fakeBroker) PlaceReservation(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	var err error
	if len(f.results) > 0 {
		err, f.results = f.results[0], f.results[1:]
	}
	if err != nil {
		return &models.OrderResult{}, err
	}
	return &models.OrderResult{OrderNo: fmt.Sprintf("%04d", len(f.placed)), Code: "0"}, nil
}

type fakeHolidays struct {
	mu        sync.Mutex
	closed    bool
	expiry    time.Time
	asked     []int
	countries []models.Country
}

func (f *fakeHolidays) NthOpenDay(_ context.Context, country models.Country, n int) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, n)
	f.countries = append(f.countries, country)
	return f.expiry, nil
}

func (f *fakeHolidays) IsHoliday(context.Context, models.Country, time.Time) (bool, error) {
	return f.closed, nil
}

type fakeJournal struct {
	mu   sync.Mutex
	recs []models.OrderRecord
}

func (f *fakeJournal) Record(_ context.Context, recs []models.OrderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, recs...)
	return nil
}

type nopMetrics struct{}

func (nopMetrics) RecordOrder(string, string, string) {}
func (nopMetrics) RecordBrokerCall(string, string) {}
func (nopMetrics) RecordRetry(string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordNotional(string, string, float64) {}
func (nopMetrics) RecordLatency(string, float64) {}

type fakeNotifier struct {
	summaries []*models.SessionSummary
	alerts    []string
}

func (f *fakeNotifier) NotifySummary(_ context.Context, s *models.SessionSummary) error {
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeNotifier) Alert(_ context.Context, _ models.Country, msg string) error {
	f.alerts = append(f.alerts, msg)
	return nil
}

type fakeSellQueue struct {
	books     map[models.Country]models.LadderBook
	processed map[string]bool
	saves     int
}

func newFakeSellQueue() *fakeSellQueue {
	return &fakeSellQueue{books: map[models.Country]models.LadderBook{}, processed: map[string]bool{}}
}

func fillKey(f models.Fill) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s", f.Date.Format("20060102"), f.Symbol, f.Side, f.Price, f.Quantity, f.OrderNo)
}

func (f *fakeSellQueue) LoadBook(_ context.Context, c models.Country) (models.LadderBook, error) {
	out := models.LadderBook{}
	for sym, l := range f.books[c] {
		out[sym] = l.Clone()
	}
	return out, nil
}

func (f *fakeSellQueue) Ladder(_ context.Context, symbol string) (*models.Ladder, error) {
	for _, b := range f.books {
		if l, ok := b[symbol]; ok {
			return l.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeSellQueue) UnprocessedFills(_ context.Context, fills []models.Fill) ([]models.Fill, error) {
	var out []models.Fill
	for _, fl := range fills {
		if !f.processed[fillKey(fl)] {
			out = append(out, fl)
		}
	}
	return out, nil
}

func (f *fakeSellQueue) SaveBook(_ context.Context, c models.Country, book models.LadderBook, processed []models.Fill) error {
	saved := models.LadderBook{}
	for sym, l := range book {
		saved[sym] = l.Clone()
	}
	f.books[c] = saved
	for _, fl := range processed {
		f.processed[fillKey(fl)] = true
	}
	f.saves++
	return nil
}

type fakeLock struct {
	held     map[string]bool
	unlocked []string
}

func (f *fakeLock) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLock) Unlock(_ context.Context, key string) error {
	delete(f.held, key)
	f.unlocked = append(f.unlocked, key)
	return nil
}

func nopLog() *applogger.Logger { return applogger.Nop() }
