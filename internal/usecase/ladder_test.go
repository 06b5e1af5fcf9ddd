package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoTrade/internal/domain/models"
	"AutoTrade/internal/services/features"
)

func TestAllocateFixedWeights(t *testing.T) {
	l := Allocate("005930", models.KOR, []float64{12000, 11500, 11000, 10500}, 100)

	require.NoError(t, l.Validate())
	assert.Equal(t, int64(40), l.Quantity(dec("12000")))
	assert.Equal(t, int64(30), l.Quantity(dec("11500")))
	assert.Equal(t, int64(20), l.Quantity(dec("11000")))
	assert.Equal(t, int64(10), l.Quantity(dec("10500")))
}

func TestAllocateRemainderToNearest(t *testing.T) {
	l := Allocate("AAPL", models.USA, []float64{90, 92, 94, 96}, 7)

	assert.Equal(t, int64(7), l.Total())
	assert.Equal(t, int64(2), l.Quantity(dec("90")))
	assert.Equal(t, int64(2), l.Quantity(dec("92")))
	assert.Equal(t, int64(1), l.Quantity(dec("94")))
	assert.Equal(t, int64(2), l.Quantity(dec("96")))
}

func TestAllocateRenormalisesFewerLevels(t *testing.T) {
	l := Allocate("AAPL", models.USA, []float64{97, 98, 99}, 10)

	assert.Equal(t, int64(10), l.Total())
	assert.Equal(t, int64(4), l.Quantity(dec("97")))
	assert.Equal(t, int64(3), l.Quantity(dec("98")))
	assert.Equal(t, int64(3), l.Quantity(dec("99")))
}

func TestAllocateDropsZeroShares(t *testing.T) {
	l := Allocate("AAPL", models.USA, []float64{90, 92, 94, 96}, 1)
	assert.Equal(t, int64(1), l.Total())
	assert.Len(t, l.Levels, 1)
}

func TestRoundPrice(t *testing.T) {
	assert.True(t, RoundPrice(models.KOR, 12347).Equal(dec("12350")))
	assert.True(t, RoundPrice(models.KOR, 1234.4).Equal(dec("1234")))
	assert.True(t, RoundPrice(models.USA, 101.236).Equal(dec("101.24")))
}

func flatSeries(n int, close float64) *features.Series {
	return features.FromBars(flatBars("X", n, time.Date(2024, 10, 10, 0, 0, 0, 0, kst), close))
}

func TestEntryLevelsFurthestFirstWithGap(t *testing.T) {
	levels, err := EntryLevels(flatSeries(40, 100), 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{97, 98, 99}, levels)
}

func TestEntryLevelsNeedsATR(t *testing.T) {
	_, err := EntryLevels(flatSeries(40, 100), 0)
	assert.ErrorIs(t, err, ErrDataInsufficient)
}

func TestBuildLadderAddsPrevCloseExtra(t *testing.T) {
	s := flatSeries(40, 100)

	l, err := BuildLadder("AAPL", models.USA, s, 2, 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(11), l.Total())
	assert.Equal(t, int64(1), l.Quantity(dec("100")))

	l, err = BuildLadder("AAPL", models.USA, s, 2, 10, false)
	require.NoError(t, err)
	assert.Equal(t, int64(10), l.Total())
}
