package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/service/kis"
)

var expiry = time.Date(2024, 10, 15, 0, 0, 0, 0, kst)

func newTestExecutor(b *fakeBroker, j *fakeJournal) (*Executor, *fakeHolidays) {
	h := &fakeHolidays{expiry: expiry}
	e := NewExecutor(b, h, j, nopMetrics{}, nil, DefaultPolicy(), nopLog())
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e, h
}

func TestExecuteBuysSkipsAboveAverageCost(t *testing.T) {
	b := &fakeBroker{}
	j := &fakeJournal{}
	e, h := newTestExecutor(b, j)

	book := models.LadderBook{}
	book.Ladder("005930", models.KOR).Add(dec("9000"), 5)
	book.Ladder("005930", models.KOR).Add(dec("9900"), 5)
	holdings := models.Holdings{"005930": {Symbol: "005930", Country: models.KOR, Quantity: 10, AverageCost: dec("10000")}}

	res, err := e.ExecuteBuys(context.Background(), "run", book, holdings)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, h.asked)
	assert.Equal(t, []models.Country{models.KOR}, h.countries)
	assert.Equal(t, 1, res.Submitted)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, res.Notional.Equal(dec("45000")))
	require.Len(t, b.placed, 1)
	assert.True(t, b.placed[0].Price.Equal(dec("9000")))
	assert.Equal(t, expiry, b.placed[0].Expiry)
	assert.Len(t, j.recs, 2)
}

func TestExecuteSellsNeverExceedsHolding(t *testing.T) {
	b := &fakeBroker{}
	e, h := newTestExecutor(b, &fakeJournal{})

	book := models.LadderBook{}
	book.Ladder("005930", models.KOR).Add(dec("10100"), 8)
	book.Ladder("005930", models.KOR).Add(dec("10500"), 5)
	holdings := models.Holdings{"005930": {Symbol: "005930", Country: models.KOR, Quantity: 10, AverageCost: dec("10000")}}

	res, err := e.ExecuteSells(context.Background(), "run", book, holdings)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, h.asked)
	assert.Equal(t, 2, res.Submitted)
	var total int64
	for _, req := range b.placed {
		assert.Equal(t, models.Sell, req.Side)
		total += req.Quantity
	}
	assert.Equal(t, int64(10), total)
	assert.Equal(t, int64(2), b.placed[1].Quantity)
}

func TestCostFloor(t *testing.T) {
	assert.True(t, costFloor(models.KOR, dec("10000"), dec("9500")).Equal(dec("10030")))
	assert.True(t, costFloor(models.USA, dec("100"), dec("95")).Equal(dec("100.5")))
	assert.True(t, costFloor(models.USA, dec("100"), dec("120")).Equal(dec("120")))
	assert.True(t, costFloor(models.USA, dec("0"), dec("95")).Equal(dec("95")))
}

func TestExecuteCountsRejectionsAndContinues(t *testing.T) {
	b := &fakeBroker{results: []error{&kis.OrderRejectedError{Code: "1", Message: "no"}}}
	e, h := newTestExecutor(b, &fakeJournal{})

	book := models.LadderBook{}
	book.Ladder("A", models.USA).Add(dec("10"), 1)
	book.Ladder("B", models.USA).Add(dec("20"), 1)

	res, err := e.ExecuteBuys(context.Background(), "run", book, models.Holdings{})
	require.NoError(t, err)
	assert.Equal(t, []models.Country{models.USA}, h.countries)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Submitted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "A", res.Errors[0].Symbol)
	assert.Equal(t, "rejected", res.Errors[0].Kind)
}

func TestExecuteStopsOnAuthFailure(t *testing.T) {
	b := &fakeBroker{results: []error{&kis.AuthenticationError{Reason: "expired"}}}
	e, _ := newTestExecutor(b, &fakeJournal{})

	book := models.LadderBook{}
	book.Ladder("A", models.USA).Add(dec("10"), 1)
	book.Ladder("B", models.USA).Add(dec("20"), 1)

	res, err := e.ExecuteBuys(context.Background(), "run", book, models.Holdings{})
	require.Error(t, err)
	assert.Len(t, b.placed, 1)
	assert.Equal(t, 1, res.Failed)
}

func TestExecuteWaitsOutRateLimit(t *testing.T) {
	b := &fakeBroker{results: []error{&kis.RateLimitError{RetryAfter: 7 * time.Second}}}
	e, _ := newTestExecutor(b, &fakeJournal{})
	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	book := models.LadderBook{}
	book.Ladder("A", models.USA).Add(dec("10"), 1)

	res, err := e.ExecuteBuys(context.Background(), "run", book, models.Holdings{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, slept)
	assert.Len(t, b.placed, 2)
	assert.Equal(t, 1, res.Submitted)
}

func TestExecuteDryRunSkipsBroker(t *testing.T) {
	b := &fakeBroker{}
	j := &fakeJournal{}
	e, _ := newTestExecutor(b, j)

	book := models.LadderBook{}
	book.Ladder("A", models.USA).Add(dec("10"), 3)

	res, err := e.WithDryRun(true).ExecuteBuys(context.Background(), "run", book, models.Holdings{})
	require.NoError(t, err)
	assert.Empty(t, b.placed)
	assert.Equal(t, 1, res.Submitted)
	require.Len(t, j.recs, 1)
	assert.Equal(t, models.OutcomeDryRun, j.recs[0].Outcome)
	assert.Equal(t, "run", j.recs[0].RunID)
}

type denyGuard struct{}

func (denyGuard) Admit(string, models.OrderRequest) error { return assert.AnError }

func TestExecuteGuardRefusal(t *testing.T) {
	b := &fakeBroker{}
	e, _ := newTestExecutor(b, &fakeJournal{})
	e.guard = denyGuard{}

	book := models.LadderBook{}
	book.Ladder("A", models.USA).Add(dec("10"), 3)

	res, err := e.ExecuteBuys(context.Background(), "run", book, models.Holdings{})
	require.NoError(t, err)
	assert.Empty(t, b.placed)
	assert.Equal(t, 1, res.Skipped)
}
