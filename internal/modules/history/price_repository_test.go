package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/compass/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPriceRepository(t *testing.T) *PriceRepository {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
		Name: "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())

	return NewPriceRepository(db.Conn(), zerolog.Nop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertAndGetDailyCloses(t *testing.T) {
	repo := newTestPriceRepository(t)

	err := repo.UpsertDailyPrices([]DailyPrice{
		{Symbol: "AAPL", Date: day(2025, 1, 2), Close: 100, Volume: 1000},
		{Symbol: "AAPL", Date: day(2025, 1, 3), Close: 102, Volume: 1100},
		{Symbol: "MSFT", Date: day(2025, 1, 2), Close: 300},
	})
	require.NoError(t, err)

	prices, err := repo.GetDailyCloses("AAPL", day(2025, 1, 1))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, day(2025, 1, 2), prices[0].Date)
	assert.Equal(t, 100.0, prices[0].Close)
	assert.Equal(t, 102.0, prices[1].Close)
}

func TestUpsertDailyPrices_ReplacesExistingBar(t *testing.T) {
	repo := newTestPriceRepository(t)

	require.NoError(t, repo.UpsertDailyPrices([]DailyPrice{
		{Symbol: "AAPL", Date: day(2025, 1, 2), Close: 100},
	}))
	require.NoError(t, repo.UpsertDailyPrices([]DailyPrice{
		{Symbol: "AAPL", Date: day(2025, 1, 2), Close: 101.5},
	}))

	prices, err := repo.GetDailyCloses("AAPL", day(2025, 1, 1))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 101.5, prices[0].Close)
}

func TestGetDailyCloses_FromBoundIsInclusive(t *testing.T) {
	repo := newTestPriceRepository(t)

	require.NoError(t, repo.UpsertDailyPrices([]DailyPrice{
		{Symbol: "AAPL", Date: day(2025, 1, 2), Close: 100},
		{Symbol: "AAPL", Date: day(2025, 1, 3), Close: 102},
		{Symbol: "AAPL", Date: day(2025, 1, 6), Close: 104},
	}))

	prices, err := repo.GetDailyCloses("AAPL", day(2025, 1, 3))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, day(2025, 1, 3), prices[0].Date)
}

func TestLatestPrice(t *testing.T) {
	repo := newTestPriceRepository(t)

	_, ok, err := repo.GetLatestPrice("AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetLatestPrice("AAPL", 151.25))
	require.NoError(t, repo.SetLatestPrice("AAPL", 152.50))

	price, ok, err := repo.GetLatestPrice("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 152.50, price)
}

func TestEarliestDate(t *testing.T) {
	repo := newTestPriceRepository(t)

	_, ok, err := repo.EarliestDate("AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.UpsertDailyPrices([]DailyPrice{
		{Symbol: "AAPL", Date: day(2025, 2, 1), Close: 110},
		{Symbol: "AAPL", Date: day(2025, 1, 2), Close: 100},
	}))

	earliest, ok, err := repo.EarliestDate("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2025, 1, 2), earliest)
}
