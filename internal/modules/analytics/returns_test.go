package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seriesOf builds a daily value series starting 2025-01-01.
func seriesOf(values ...float64) []PriceDataPoint {
	series := make([]PriceDataPoint, len(values))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		series[i] = PriceDataPoint{Date: start.AddDate(0, 0, i), Value: v}
	}
	return series
}

func returnsOf(values ...float64) []ReturnDataPoint {
	returns := make([]ReturnDataPoint, len(values))
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		returns[i] = ReturnDataPoint{Date: start.AddDate(0, 0, i), Return: v}
	}
	return returns
}

func TestCalculateReturns_Length(t *testing.T) {
	series := seriesOf(100, 110, 99, 120, 120)

	returns := CalculateReturns(series)

	require.Len(t, returns, len(series)-1)
	for i := range returns {
		expected := series[i+1].Value/series[i].Value - 1
		assert.InDelta(t, expected, returns[i].Return, 1e-12)
		assert.Equal(t, series[i+1].Date, returns[i].Date)
	}
}

func TestCalculateReturns_ShortInput(t *testing.T) {
	assert.Empty(t, CalculateReturns(nil))
	assert.Empty(t, CalculateReturns(seriesOf(100)))
}

func TestCalculateReturns_ZeroPreviousValue(t *testing.T) {
	returns := CalculateReturns(seriesOf(0, 100, 110))

	require.Len(t, returns, 2)
	assert.Equal(t, 0.0, returns[0].Return)
	assert.InDelta(t, 0.10, returns[1].Return, 1e-12)
}

func TestAggregateReturns_CompoundsGeometrically(t *testing.T) {
	returns := returnsOf(0.10, 0.10, -0.05, 0.02)

	aggregated := AggregateReturns(returns, 2)

	require.Len(t, aggregated, 2)
	assert.InDelta(t, 1.10*1.10-1, aggregated[0].Return, 1e-12)
	assert.InDelta(t, 0.95*1.02-1, aggregated[1].Return, 1e-12)
	assert.Equal(t, returns[1].Date, aggregated[0].Date)
	assert.Equal(t, returns[3].Date, aggregated[1].Date)
}

func TestAggregateReturns_TrailingPartialBucket(t *testing.T) {
	returns := returnsOf(0.10, 0.10, 0.05)

	aggregated := AggregateReturns(returns, 2)

	require.Len(t, aggregated, 2)
	assert.InDelta(t, 0.05, aggregated[1].Return, 1e-12)
}

func TestAggregateReturns_Degenerate(t *testing.T) {
	assert.Empty(t, AggregateReturns(nil, 5))
	assert.Empty(t, AggregateReturns(returnsOf(0.1), 0))
}

func TestSortSeries(t *testing.T) {
	series := seriesOf(100, 110, 120)
	shuffled := []PriceDataPoint{series[2], series[0], series[1]}

	SortSeries(shuffled)

	assert.Equal(t, series, shuffled)
}

func TestAlignReturns_IntersectsByDate(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC) }

	portfolio := []ReturnDataPoint{
		{Date: d(2), Return: 0.01},
		{Date: d(3), Return: 0.02},
		{Date: d(6), Return: 0.03},
	}
	benchmark := []ReturnDataPoint{
		{Date: d(2), Return: 0.005},
		{Date: d(6), Return: 0.015},
		{Date: d(7), Return: 0.025},
	}

	pv, bv := AlignReturns(portfolio, benchmark)

	assert.Equal(t, []float64{0.01, 0.03}, pv)
	assert.Equal(t, []float64{0.005, 0.015}, bv)
}
