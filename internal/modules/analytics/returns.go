package analytics

import (
	"sort"
	"time"
)

// SortSeries orders a value series by date ascending. Calculations assume
// ascending input; callers that cannot guarantee it sort defensively.
func SortSeries(series []PriceDataPoint) {
	sort.Slice(series, func(i, j int) bool {
		return series[i].Date.Before(series[j].Date)
	})
}

// CalculateReturns converts a value series into period-over-period
// returns: Return[i] = (Value[i+1] - Value[i]) / Value[i].
// A zero previous value yields a zero return for that step, preserving
// sequence length for downstream alignment. Fewer than two points yield
// an empty sequence.
func CalculateReturns(series []PriceDataPoint) []ReturnDataPoint {
	if len(series) < 2 {
		return []ReturnDataPoint{}
	}

	returns := make([]ReturnDataPoint, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		var r float64
		if series[i-1].Value != 0 {
			r = (series[i].Value - series[i-1].Value) / series[i-1].Value
		}
		returns = append(returns, ReturnDataPoint{Date: series[i].Date, Return: r})
	}

	return returns
}

// AggregateReturns compounds consecutive returns geometrically into
// buckets of windowSize: (1+r1)(1+r2)...(1+rk) - 1. A trailing partial
// bucket is compounded over what remains. Each bucket carries the date
// of its last constituent return.
func AggregateReturns(returns []ReturnDataPoint, windowSize int) []ReturnDataPoint {
	if windowSize <= 0 || len(returns) == 0 {
		return []ReturnDataPoint{}
	}

	var aggregated []ReturnDataPoint
	for start := 0; start < len(returns); start += windowSize {
		end := start + windowSize
		if end > len(returns) {
			end = len(returns)
		}
		aggregated = append(aggregated, ReturnDataPoint{
			Date:   returns[end-1].Date,
			Return: compound(returns[start:end]),
		})
	}

	return aggregated
}

// compound chains returns geometrically: (1+r1)...(1+rn) - 1.
func compound(returns []ReturnDataPoint) float64 {
	product := 1.0
	for _, r := range returns {
		product *= 1 + r.Return
	}
	return product - 1
}

// returnValues extracts the raw return fractions for statistics helpers.
func returnValues(returns []ReturnDataPoint) []float64 {
	values := make([]float64, len(returns))
	for i, r := range returns {
		values[i] = r.Return
	}
	return values
}

// AlignReturns intersects two return series by date and produces two
// equal-length, chronologically aligned value slices. Series with
// different gaps (holidays, missing bars) only compare on shared dates.
func AlignReturns(a, b []ReturnDataPoint) ([]float64, []float64) {
	bByDate := make(map[time.Time]float64, len(b))
	for _, r := range b {
		bByDate[dayKey(r.Date)] = r.Return
	}

	var av, bv []float64
	for _, r := range a {
		if br, ok := bByDate[dayKey(r.Date)]; ok {
			av = append(av, r.Return)
			bv = append(bv, br)
		}
	}

	return av, bv
}
