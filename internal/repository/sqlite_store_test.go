package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
	applogger "AutoTrade/pkg/logger"
	pkgsqlite "AutoTrade/pkg/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := pkgsqlite.Open(pkgsqlite.Memory)
	require.NoError(t, err)
	s, err := NewSQLiteStore(context.Background(), db, applogger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSaveBookRoundTripAndMarksFills(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	book := models.LadderBook{}
	book.Ladder("005930", models.KOR).Add(d("77000"), 5)
	book.Ladder("005930", models.KOR).Add(d("84000"), 3)
	book.Ladder("000660", models.KOR).Add(d("210000"), 2)

	fill := models.Fill{
		OrderNo:  "0001",
		Symbol:   "005930",
		Country:  models.KOR,
		Side:     models.Buy,
		Price:    d("70000"),
		Quantity: 8,
		Date:     time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC),
	}
	fresh, err := s.UnprocessedFills(ctx, []models.Fill{fill})
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	require.NoError(t, s.SaveBook(ctx, models.KOR, book, fresh))

	got, err := s.LoadBook(ctx, models.KOR)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(8), got["005930"].Total())
	assert.True(t, got["005930"].Levels[0].Price.Equal(d("77000")))
	assert.Equal(t, int64(2), got["000660"].Quantity(d("210000")))

	fresh, err = s.UnprocessedFills(ctx, []models.Fill{fill})
	require.NoError(t, err)
	assert.Empty(t, fresh)

	l, err := s.Ladder(ctx, "000660")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, models.KOR, l.Country)

	l, err = s.Ladder(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestSaveBookReplacesOnlyOneCountry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	kor := models.LadderBook{}
	kor.Ladder("005930", models.KOR).Add(d("77000"), 5)
	usa := models.LadderBook{}
	usa.Ladder("AAPL", models.USA).Add(d("231.5"), 4)
	require.NoError(t, s.SaveBook(ctx, models.KOR, kor, nil))
	require.NoError(t, s.SaveBook(ctx, models.USA, usa, nil))

	require.NoError(t, s.SaveBook(ctx, models.KOR, models.LadderBook{}, nil))

	got, err := s.LoadBook(ctx, models.KOR)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = s.LoadBook(ctx, models.USA)
	require.NoError(t, err)
	assert.True(t, got["AAPL"].Levels[0].Price.Equal(d("231.5")))
}

func TestReplaceAssignments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ReplaceAssignments(ctx, map[string]models.Category{"AAPL": models.Growth, "KO": models.Dividend}))
	require.NoError(t, s.ReplaceAssignments(ctx, map[string]models.Category{"KO": models.Dividend}))

	got, err := s.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Category{"KO": models.Dividend}, got)
}

func TestCandidatesFilterByCountry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ReplaceCandidates(ctx, models.USA, models.Growth, []string{"NVDA", "AAPL"}))
	require.NoError(t, s.ReplaceCandidates(ctx, models.KOR, models.Dividend, []string{"005930"}))
	require.NoError(t, s.ReplaceCandidates(ctx, models.USA, models.Growth, []string{"AAPL"}))

	usa, err := s.Candidates(ctx, models.USA)
	require.NoError(t, err)
	assert.Equal(t, []models.Candidate{{Symbol: "AAPL", Country: models.USA, Category: models.Growth}}, usa)

	all, err := s.Candidates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
