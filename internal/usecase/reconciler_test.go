package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
)

func newTestReconciler(b *fakeBroker, q *fakeSellQueue) *Reconciler {
	r := NewReconciler(b, q, kst, nopLog())
	r.now = func() time.Time { return time.Date(2024, 10, 10, 16, 0, 0, 0, kst) }
	return r
}

var fillDay = time.Date(2024, 10, 10, 0, 0, 0, 0, kst)

func held(sym string, qty int64, avg string) models.Holdings {
	return models.Holdings{sym: {Symbol: sym, Country: models.KOR, Quantity: qty, AverageCost: dec(avg)}}
}

func TestReconcileBuyFillFansIntoTiers(t *testing.T) {
	b := &fakeBroker{fills: []models.Fill{
		{OrderNo: "1", Symbol: "005930", Side: models.Buy, Price: dec("10000"), Quantity: 10, Date: fillDay},
	}}
	q := newFakeSellQueue()
	r := newTestReconciler(b, q)

	book, rep, err := r.Reconcile(context.Background(), models.KOR, held("005930", 10, "10000"))
	require.NoError(t, err)

	l := book["005930"]
	require.NotNil(t, l)
	assert.Equal(t, int64(5), l.Quantity(dec("11000")))
	assert.Equal(t, int64(3), l.Quantity(dec("12000")))
	assert.Equal(t, int64(2), l.Quantity(dec("15000")))
	assert.Equal(t, 1, rep.Fills)
	assert.Zero(t, rep.Added)
}

func TestReconcileIsIdempotent(t *testing.T) {
	b := &fakeBroker{fills: []models.Fill{
		{OrderNo: "1", Symbol: "005930", Side: models.Buy, Price: dec("10000"), Quantity: 10, Date: fillDay},
	}}
	q := newFakeSellQueue()
	r := newTestReconciler(b, q)
	h := held("005930", 10, "10000")

	first, _, err := r.Reconcile(context.Background(), models.KOR, h)
	require.NoError(t, err)
	second, rep, err := r.Reconcile(context.Background(), models.KOR, h)
	require.NoError(t, err)

	assert.Zero(t, rep.Fills)
	assert.Equal(t, first["005930"].Levels, second["005930"].Levels)
	assert.Equal(t, int64(10), second["005930"].Total())
}

func TestReconcileSellFillConsumesLevel(t *testing.T) {
	q := newFakeSellQueue()
	l := models.NewLadder("005930", models.KOR)
	l.Add(dec("11000"), 5)
	l.Add(dec("12000"), 3)
	l.Add(dec("15000"), 2)
	q.books[models.KOR] = models.LadderBook{"005930": l}

	b := &fakeBroker{fills: []models.Fill{
		{OrderNo: "2", Symbol: "005930", Side: models.Sell, Price: dec("11000"), Quantity: 3, Date: fillDay},
	}}
	book, _, err := newTestReconciler(b, q).Reconcile(context.Background(), models.KOR, held("005930", 7, "10000"))
	require.NoError(t, err)

	assert.Equal(t, int64(2), book["005930"].Quantity(dec("11000")))
	assert.Equal(t, int64(7), book["005930"].Total())
}

func TestReconcileTrimsCheapestFirst(t *testing.T) {
	q := newFakeSellQueue()
	l := models.NewLadder("005930", models.KOR)
	l.Add(dec("11000"), 5)
	l.Add(dec("12000"), 3)
	l.Add(dec("15000"), 2)
	q.books[models.KOR] = models.LadderBook{"005930": l}

	book, rep, err := newTestReconciler(&fakeBroker{}, q).Reconcile(context.Background(), models.KOR, held("005930", 6, "10000"))
	require.NoError(t, err)

	got := book["005930"]
	assert.Equal(t, int64(1), got.Quantity(dec("11000")))
	assert.Equal(t, int64(3), got.Quantity(dec("12000")))
	assert.Equal(t, int64(2), got.Quantity(dec("15000")))
	assert.Equal(t, int64(4), rep.Trimmed)
}

func TestReconcileShortfallAnchorsOnAverageCost(t *testing.T) {
	q := newFakeSellQueue()
	book, rep, err := newTestReconciler(&fakeBroker{}, q).Reconcile(context.Background(), models.KOR, held("000660", 4, "20000"))
	require.NoError(t, err)

	got := book["000660"]
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Quantity(dec("22000")))
	assert.Equal(t, int64(1), got.Quantity(dec("24000")))
	assert.Len(t, got.Levels, 2)
	assert.Equal(t, int64(4), rep.Added)
}

func TestReconcileShortfallWithoutPriceTopsUpPersistedLevel(t *testing.T) {
	q := newFakeSellQueue()
	l := models.NewLadder("000660", models.KOR)
	l.Add(dec("22000"), 1)
	l.Add(dec("24000"), 1)
	q.books[models.KOR] = models.LadderBook{"000660": l}
	holdings := models.Holdings{"000660": {Symbol: "000660", Country: models.KOR, Quantity: 5}}

	book, rep, err := newTestReconciler(&fakeBroker{}, q).Reconcile(context.Background(), models.KOR, holdings)
	require.NoError(t, err)

	got := book["000660"]
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.Total())
	assert.Equal(t, int64(4), got.Quantity(dec("24000")))
	assert.Equal(t, int64(3), rep.Added)
	assert.Empty(t, rep.Unanchored)
}

func TestReconcileReportsUnanchoredHoldings(t *testing.T) {
	q := newFakeSellQueue()
	holdings := models.Holdings{
		"005380": {Symbol: "005380", Country: models.KOR, Quantity: 3},
		"005930": {Symbol: "005930", Country: models.KOR, Quantity: 2, CurrentPrice: dec("10000")},
	}

	book, rep, err := newTestReconciler(&fakeBroker{}, q).Reconcile(context.Background(), models.KOR, holdings)
	require.NoError(t, err)

	assert.NotContains(t, book, "005380")
	assert.Equal(t, int64(2), book["005930"].Total())
	assert.Equal(t, []string{"005380"}, rep.Unanchored)
	assert.Equal(t, 1, rep.Symbols)
}

func TestReconcileClearsSoldOutSymbols(t *testing.T) {
	q := newFakeSellQueue()
	l := models.NewLadder("035720", models.KOR)
	l.Add(dec("50000"), 2)
	q.books[models.KOR] = models.LadderBook{"035720": l}

	book, rep, err := newTestReconciler(&fakeBroker{}, q).Reconcile(context.Background(), models.KOR, models.Holdings{})
	require.NoError(t, err)
	assert.Empty(t, book)
	assert.Equal(t, 1, rep.Cleared)
	assert.Empty(t, q.books[models.KOR])
}

func TestReconcileInvariantHoldsForEveryHolding(t *testing.T) {
	b := &fakeBroker{fills: []models.Fill{
		{OrderNo: "1", Symbol: "A", Side: models.Buy, Price: dec("5000"), Quantity: 7, Date: fillDay},
		{OrderNo: "2", Symbol: "B", Side: models.Sell, Price: dec("9990"), Quantity: 1, Date: fillDay},
	}}
	h := models.Holdings{
		"A": {Symbol: "A", Country: models.KOR, Quantity: 9, AverageCost: dec("5100")},
		"B": {Symbol: "B", Country: models.KOR, Quantity: 3, AverageCost: dec("9000")},
	}
	book, _, err := newTestReconciler(b, newFakeSellQueue()).Reconcile(context.Background(), models.KOR, h)
	require.NoError(t, err)
	for sym, hold := range h {
		assert.Equal(t, hold.Quantity, book[sym].Total(), sym)
		assert.NoError(t, book[sym].Validate())
	}
}
