package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
)

var screenNow = time.Date(2024, 10, 10, 16, 0, 0, 0, kst)

func newTestStrategy(ctor func(StrategyDeps) *Engine, prices *fakePrices, cands *fakeCandidates, assign *fakeAssignments) *Engine {
	p := DefaultPolicy()
	p.Workers = 2
	e := ctor(StrategyDeps{
		Prices:      prices,
		Candidates:  cands,
		Assignments: assign,
		Market:      NewMarketReader(prices, "VIX", nopLog()),
		Policy:      p,
		Location:    kst,
		Log:         nopLog(),
	})
	e.now = func() time.Time { return screenNow }
	return e
}

func TestFilterForBuyReportsStaleAndShortHistory(t *testing.T) {
	day := time.Date(2024, 10, 10, 0, 0, 0, 0, kst)
	prices := &fakePrices{bars: map[string][]models.PriceBar{
		"STALE": flatBars("STALE", 200, day.AddDate(0, 0, -3), 10000),
		"SHORT": flatBars("SHORT", 50, day, 10000),
		"FLAT":  flatBars("FLAT", 200, day, 10000),
	}}
	cands := &fakeCandidates{list: []models.Candidate{
		{Symbol: "STALE", Country: models.KOR, Category: models.Dividend},
		{Symbol: "SHORT", Country: models.KOR, Category: models.Dividend},
		{Symbol: "FLAT", Country: models.KOR, Category: models.Dividend},
		{Symbol: "OTHER", Country: models.KOR, Category: models.Growth},
	}}
	e := newTestStrategy(NewDividendStrategy, prices, cands, &fakeAssignments{})

	book, errs := e.FilterForBuy(context.Background(), models.KOR)

	assert.Empty(t, book)
	require.Len(t, errs, 2)
	assert.Equal(t, "SHORT", errs[0].Symbol)
	assert.Equal(t, "STALE", errs[1].Symbol)
	for _, se := range errs {
		assert.Equal(t, "data", se.Kind)
	}
}

func TestFilterForBuyHaltedByVIX(t *testing.T) {
	day := time.Date(2024, 10, 10, 0, 0, 0, 0, kst)
	prices := &fakePrices{bars: map[string][]models.PriceBar{
		"VIX":   flatBars("VIX", 3, day, 35),
		"STALE": flatBars("STALE", 200, day.AddDate(0, 0, -3), 10000),
	}}
	cands := &fakeCandidates{list: []models.Candidate{{Symbol: "STALE", Country: models.KOR, Category: models.Box}}}
	e := newTestStrategy(NewRangeBoundStrategy, prices, cands, &fakeAssignments{})

	book, errs := e.FilterForBuy(context.Background(), models.KOR)
	assert.Empty(t, book)
	assert.Empty(t, errs)
}

func TestGrowthSellsBelowLongAverage(t *testing.T) {
	day := time.Date(2024, 10, 10, 0, 0, 0, 0, kst)
	prices := &fakePrices{bars: map[string][]models.PriceBar{
		"AAPL": risingBars("AAPL", 200, day, -0.2),
		"MSFT": risingBars("MSFT", 200, day, -0.2),
	}}
	assign := &fakeAssignments{m: map[string]models.Category{"AAPL": models.Growth, "MSFT": models.Box}}
	e := newTestStrategy(NewGrowthStrategy, prices, &fakeCandidates{}, assign)

	holdings := models.Holdings{
		"AAPL": {Symbol: "AAPL", Country: models.USA, Quantity: 10},
		"MSFT": {Symbol: "MSFT", Country: models.USA, Quantity: 10},
	}
	book, errs := e.FilterForSell(context.Background(), holdings)
	require.Empty(t, errs)

	require.Len(t, book, 1)
	l := book["AAPL"]
	require.NotNil(t, l)
	assert.Equal(t, int64(5), l.Total())
	// last close 100 - 0.2*199 = 60.2, sold at 0.5% below
	assert.True(t, l.Levels[0].Price.Equal(dec("59.9")), l.Levels[0].Price.String())
}

func TestSellSkipsUnheldSymbols(t *testing.T) {
	assign := &fakeAssignments{m: map[string]models.Category{"AAPL": models.Growth}}
	e := newTestStrategy(NewGrowthStrategy, &fakePrices{}, &fakeCandidates{}, assign)

	book, errs := e.FilterForSell(context.Background(), models.Holdings{"AAPL": {Symbol: "AAPL", Country: models.USA}})
	require.Empty(t, errs)
	assert.Empty(t, book)
}

func TestSellReportsSymbolsWithoutData(t *testing.T) {
	assign := &fakeAssignments{m: map[string]models.Category{"AAPL": models.Growth}}
	e := newTestStrategy(NewGrowthStrategy, &fakePrices{}, &fakeCandidates{}, assign)

	book, errs := e.FilterForSell(context.Background(), models.Holdings{"AAPL": {Symbol: "AAPL", Country: models.USA, Quantity: 3}})
	assert.Empty(t, book)
	require.Len(t, errs, 1)
	assert.Equal(t, "AAPL", errs[0].Symbol)
	assert.Equal(t, "data", errs[0].Kind)
}

// shapedBars builds daily bars ending on last, highs and lows spread away
// from the close.
func shapedBars(symbol string, last time.Time, closes, volumes []float64, spread float64) []models.PriceBar {
	n := len(closes)
	bars := make([]models.PriceBar, n)
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Symbol: symbol,
			Date:   last.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c + spread,
			Low:    c - spread,
			Close:  c,
			Volume: volumes[i],
		}
	}
	return bars
}

// pullbackBars rises 0.1 a day from 70 for 295 bars, drops 1.5 a day for four
// bars on light volume, then bounces 0.5 on heavy volume.
func pullbackBars(symbol string, last time.Time, volScale float64) []models.PriceBar {
	var closes, vols []float64
	for i := 0; i < 295; i++ {
		closes = append(closes, 70+0.1*float64(i))
		vols = append(vols, 1_000_000*volScale)
	}
	top := closes[len(closes)-1]
	for k := 1; k <= 4; k++ {
		closes = append(closes, top-1.5*float64(k))
		vols = append(vols, 200_000*volScale)
	}
	closes = append(closes, closes[len(closes)-1]+0.5)
	vols = append(vols, 3_000_000*volScale)
	return shapedBars(symbol, last, closes, vols, 1)
}

// rangeBars swings closes between 95 and 105 on a 16-day triangle that
// bottoms on the last bar. Down days trade lighter volume.
func rangeBars(symbol string, last time.Time) []models.PriceBar {
	const n = 300
	closes := make([]float64, n)
	vols := make([]float64, n)
	for i := range closes {
		p := ((8-(n-1-i))%16 + 16) % 16
		off := 5 - 1.25*float64(p)
		if p >= 8 {
			off = -5 + 1.25*float64(p-8)
		}
		closes[i] = 100 + off
		vols[i] = 1_000_000
		if i > 0 && closes[i] < closes[i-1] {
			vols[i] = 300_000
		}
	}
	return shapedBars(symbol, last, closes, vols, 0.5)
}

// usaAnchor is the bar date a USA screen at screenNow expects.
var usaAnchor = time.Date(2024, 10, 9, 0, 0, 0, 0, kst)

func TestDividendBuyBuildsLadder(t *testing.T) {
	prices := &fakePrices{bars: map[string][]models.PriceBar{"KO": pullbackBars("KO", usaAnchor, 1)}}
	cands := &fakeCandidates{list: []models.Candidate{{Symbol: "KO", Country: models.USA, Category: models.Dividend}}}
	e := newTestStrategy(NewDividendStrategy, prices, cands, &fakeAssignments{})

	book, errs := e.FilterForBuy(context.Background(), models.USA)
	require.Empty(t, errs)
	l := book["KO"]
	require.NotNil(t, l)
	require.NoError(t, l.Validate())

	// ATR 2.24 sizes 19 shares over three supports below the 93.90 close,
	// plus 10% bid at the 93.40 previous close
	assert.Equal(t, int64(21), l.Total())
	assert.Len(t, l.Levels, 4)
	assert.Equal(t, int64(8), l.Quantity(dec("90.55")))
	assert.Equal(t, int64(6), l.Quantity(dec("91.66")))
	assert.Equal(t, int64(5), l.Quantity(dec("92.78")))
	assert.Equal(t, int64(2), l.Quantity(dec("93.4")))
}

func TestBuySizeShrinksInBearMarket(t *testing.T) {
	prices := &fakePrices{bars: map[string][]models.PriceBar{
		"KO":    pullbackBars("KO", usaAnchor, 1),
		"^GSPC": risingBars("^GSPC", 220, screenNow, -0.3),
	}}
	cands := &fakeCandidates{list: []models.Candidate{{Symbol: "KO", Country: models.USA, Category: models.Dividend}}}
	e := newTestStrategy(NewDividendStrategy, prices, cands, &fakeAssignments{})

	book, errs := e.FilterForBuy(context.Background(), models.USA)
	require.Empty(t, errs)
	l := book["KO"]
	require.NotNil(t, l)

	// floor(19 * 0.6) = 11 over the ladder, plus ceil(1.1) at the previous close
	assert.Equal(t, int64(13), l.Total())
	assert.Equal(t, int64(4), l.Quantity(dec("90.55")))
	assert.Equal(t, int64(3), l.Quantity(dec("91.66")))
	assert.Equal(t, int64(4), l.Quantity(dec("92.78")))
	assert.Equal(t, int64(2), l.Quantity(dec("93.4")))
}

func TestBuySkipsIlliquidSymbol(t *testing.T) {
	prices := &fakePrices{bars: map[string][]models.PriceBar{"KO": pullbackBars("KO", usaAnchor, 0.01)}}
	cands := &fakeCandidates{list: []models.Candidate{{Symbol: "KO", Country: models.USA, Category: models.Dividend}}}
	e := newTestStrategy(NewDividendStrategy, prices, cands, &fakeAssignments{})

	book, errs := e.FilterForBuy(context.Background(), models.USA)
	assert.Empty(t, errs)
	assert.Empty(t, book)
}

func TestRangeBoundBuysNearFloor(t *testing.T) {
	prices := &fakePrices{bars: map[string][]models.PriceBar{"T": rangeBars("T", usaAnchor)}}
	cands := &fakeCandidates{list: []models.Candidate{{Symbol: "T", Country: models.USA, Category: models.Box}}}
	e := newTestStrategy(NewRangeBoundStrategy, prices, cands, &fakeAssignments{})

	book, errs := e.FilterForBuy(context.Background(), models.USA)
	require.Empty(t, errs)
	l := book["T"]
	require.NotNil(t, l)

	// 24 shares lifted to 28 for low volatility, plus 3 at the 96.25 previous close
	assert.Equal(t, int64(31), l.Total())
	assert.Len(t, l.Levels, 4)
	assert.Equal(t, int64(12), l.Quantity(dec("92.38")))
	assert.Equal(t, int64(9), l.Quantity(dec("93.43")))
	assert.Equal(t, int64(7), l.Quantity(dec("94.5")))
	assert.Equal(t, int64(3), l.Quantity(dec("96.25")))
}

func TestDividendTrimsNearUpperBand(t *testing.T) {
	closes := make([]float64, 300)
	vols := make([]float64, 300)
	for i := range closes {
		closes[i] = 70 + 0.1*float64(i)
		vols[i] = 1_000_000
	}
	closes[299] = closes[298] + 3
	prices := &fakePrices{bars: map[string][]models.PriceBar{"KO": shapedBars("KO", usaAnchor, closes, vols, 1)}}
	assign := &fakeAssignments{m: map[string]models.Category{"KO": models.Dividend}}
	e := newTestStrategy(NewDividendStrategy, prices, &fakeCandidates{}, assign)

	book, errs := e.FilterForSell(context.Background(), models.Holdings{"KO": {Symbol: "KO", Country: models.USA, Quantity: 10}})
	require.Empty(t, errs)
	l := book["KO"]
	require.NotNil(t, l)
	assert.Equal(t, int64(5), l.Total())
	assert.Equal(t, int64(5), l.Quantity(dec("103.31")))
}

func TestRangeBoundSellsOnBreakdown(t *testing.T) {
	bars := rangeBars("T", usaAnchor)
	b := &bars[len(bars)-1]
	b.Open, b.High, b.Low, b.Close = 80, 80.5, 79.5, 80
	prices := &fakePrices{bars: map[string][]models.PriceBar{"T": bars}}
	assign := &fakeAssignments{m: map[string]models.Category{"T": models.Box}}
	e := newTestStrategy(NewRangeBoundStrategy, prices, &fakeCandidates{}, assign)

	book, errs := e.FilterForSell(context.Background(), models.Holdings{"T": {Symbol: "T", Country: models.USA, Quantity: 10}})
	require.Empty(t, errs)
	l := book["T"]
	require.NotNil(t, l)
	assert.Equal(t, int64(7), l.Quantity(dec("79.6")))
	assert.Equal(t, int64(7), l.Total())
}
