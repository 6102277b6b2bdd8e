package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/modules/history"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssetSource struct {
	assets map[string][]domain.Asset
}

func (f *fakeAssetSource) ListAssets(portfolioID string) ([]domain.Asset, error) {
	return f.assets[portfolioID], nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	start := utcDay(2025, 1, 1)
	aaplCloses := make([]history.DailyPrice, 0, 40)
	spyCloses := make([]history.DailyPrice, 0, 40)
	for d := 0; d < 40; d++ {
		date := start.AddDate(0, 0, d)
		aaplCloses = append(aaplCloses, history.DailyPrice{
			Symbol: "AAPL", Date: date, Close: 100 + float64(d),
		})
		spyCloses = append(spyCloses, history.DailyPrice{
			Symbol: "SPY", Date: date, Close: 400 + 2*float64(d),
		})
	}

	assets := &fakeAssetSource{assets: map[string][]domain.Asset{
		"p1": {
			tradedAsset("AAPL", 139, buy(start, 10, 100)),
			{
				Name: "Savings", Type: domain.AssetTypeCash,
				Transactions: []domain.Transaction{buy(start, 1, 1000)},
			},
		},
	}}
	prices := &fakePriceSource{closes: map[string][]history.DailyPrice{
		"AAPL": aaplCloses,
		"SPY":  spyCloses,
	}}

	svc := NewService(assets, prices, Config{
		RiskFreeRate:    0.02,
		BenchmarkSymbol: "SPY",
	}, zerolog.Nop())
	svc.now = func() time.Time { return utcDay(2025, 2, 9) }

	return svc
}

func TestComputeAnalytics_ValidatesInput(t *testing.T) {
	svc := newTestService(t)

	var vErr *ValidationError

	_, err := svc.ComputeAnalytics("", SourceDaily)
	require.Error(t, err)
	assert.True(t, errors.As(err, &vErr))

	_, err = svc.ComputeAnalytics("p1", DataSource("hourly"))
	require.Error(t, err)
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "source", vErr.Field)
}

func TestComputeAnalytics_EmptyPortfolioYieldsZeroResult(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.ComputeAnalytics("unknown", SourceDaily)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Risk.Volatility)
	assert.Equal(t, 0.0, result.Performance.TotalReturn)
	assert.Empty(t, result.Allocation.ByValue)
	assert.Equal(t, 0, result.Metadata.Points)
	assert.False(t, result.Metadata.CalculatedAt.IsZero())
}

func TestComputeAnalytics_Daily(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.ComputeAnalytics("p1", SourceDaily)
	require.NoError(t, err)

	// 40 calendar days of history spanning Jan 1 to Feb 9.
	assert.Equal(t, 40, result.Metadata.Points)
	assert.Equal(t, utcDay(2025, 1, 1), result.Metadata.SeriesStart)
	assert.Equal(t, utcDay(2025, 2, 9), result.Metadata.SeriesEnd)
	assert.Equal(t, SourceDaily, result.Metadata.Source)
	assert.Equal(t, "p1", result.Metadata.PortfolioID)

	// 10 shares from 100 to 139 plus flat 1000 cash.
	assert.InDelta(t, (2390.0-2000.0)/2000.0, result.Performance.TotalReturn, 1e-9)
	assert.Greater(t, result.Performance.AnnualizedReturn, result.Performance.TotalReturn)
	assert.Greater(t, result.Risk.Volatility, 0.0)
	assert.Equal(t, 0.0, result.Risk.MaxDrawdown)
	assert.Greater(t, result.Risk.Beta, 0.0)
	assert.InDelta(t, 100, result.Performance.WinRate, 1e-9)

	assert.Equal(t, "SPY", result.Benchmark.Symbol)
	assert.Greater(t, result.Benchmark.Correlation, 0.9)
	require.Len(t, result.Benchmark.YearlyComparisons, 1)
	assert.Equal(t, 2025, result.Benchmark.YearlyComparisons[0].Year)

	require.Len(t, result.Allocation.ByCount, 2)
	var totalPct float64
	for _, s := range result.Allocation.ByValue {
		totalPct += s.Percentage
	}
	assert.InDelta(t, 100, totalPct, 0.1)
}

func TestComputeAnalytics_WeeklyUsesWeeklyAnnualization(t *testing.T) {
	svc := newTestService(t)

	daily, err := svc.ComputeAnalytics("p1", SourceDaily)
	require.NoError(t, err)
	weekly, err := svc.ComputeAnalytics("p1", SourceWeekly)
	require.NoError(t, err)

	assert.Less(t, weekly.Metadata.Points, daily.Metadata.Points)
	assert.Equal(t, SourceWeekly, weekly.Metadata.Source)
	// Same underlying values, but weekly buckets end on the same final
	// point: total return matches.
	assert.InDelta(t, daily.Performance.TotalReturn, weekly.Performance.TotalReturn, 1e-9)
}

func TestComputeAnalytics_Idempotent(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.ComputeAnalytics("p1", SourceDaily)
	require.NoError(t, err)
	second, err := svc.ComputeAnalytics("p1", SourceDaily)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
