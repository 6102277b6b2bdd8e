package analytics

import (
	"math"
	"sort"
	"time"
)

// TotalReturn is (last - first) / first over the value series. Fewer
// than two points or a zero first value yield 0.
func TotalReturn(series []PriceDataPoint) float64 {
	if len(series) < 2 {
		return 0
	}
	first := series[0].Value
	if first == 0 {
		return 0
	}
	return (series[len(series)-1].Value - first) / first
}

// TimeWeightedReturn chains sub-period returns between consecutive
// cash-flow dates, removing the distortion deposits and withdrawals
// cause: each sub-period return is (end - flow - start) / start, and the
// overall TWR is their geometric product minus one. With no flows it
// falls back to the plain total return.
func TimeWeightedReturn(series []PriceDataPoint, flows []CashFlow) float64 {
	if len(series) < 2 {
		return 0
	}
	if len(flows) == 0 {
		return TotalReturn(series)
	}

	// A flow settles on the first series point on or after its date, so
	// sparse samplings such as weekly still break a sub-period at every
	// flow instead of silently dropping the ones between sample points.
	flowAt := make(map[time.Time]float64, len(flows))
	for _, flow := range flows {
		day := dayKey(flow.Date)
		idx := sort.Search(len(series), func(i int) bool {
			return !series[i].Date.Before(day)
		})
		if idx >= len(series) {
			continue
		}
		flowAt[dayKey(series[idx].Date)] += flow.Amount
	}

	product := 1.0
	start := series[0].Value
	for i := 1; i < len(series); i++ {
		flow, ok := flowAt[dayKey(series[i].Date)]
		if !ok {
			continue
		}
		if start != 0 {
			product *= 1 + (series[i].Value-flow-start)/start
		}
		start = series[i].Value
	}

	// Remaining stretch after the last flow.
	if start != 0 {
		product *= series[len(series)-1].Value / start
	}

	return product - 1
}

// AnnualizedReturn geometrically annualizes a total return observed over
// numPeriods: (1 + total)^(periodsPerYear/numPeriods) - 1. Degenerate
// inputs (no periods, total at or below -100%) yield 0.
func AnnualizedReturn(totalReturn float64, numPeriods int, source DataSource) float64 {
	if numPeriods <= 0 {
		return 0
	}
	base := 1 + totalReturn
	if base <= 0 {
		return 0
	}
	return math.Pow(base, source.PeriodsPerYear()/float64(numPeriods)) - 1
}

// RollingReturns computes trailing-window total returns for 1, 3, and 5
// year windows. Windows longer than the available history compute over
// what exists and are flagged partial.
func RollingReturns(series []PriceDataPoint, source DataSource) []RollingReturn {
	if len(series) < 2 {
		return []RollingReturn{}
	}

	rolling := make([]RollingReturn, 0, 3)
	for _, years := range []int{1, 3, 5} {
		window := years*int(source.PeriodsPerYear()) + 1
		partial := window > len(series)
		if partial {
			window = len(series)
		}
		rolling = append(rolling, RollingReturn{
			Years:   years,
			Return:  TotalReturn(series[len(series)-window:]),
			Partial: partial,
		})
	}

	return rolling
}

// MonthlyReturns compounds the return series within each calendar month,
// ordered by month ascending.
func MonthlyReturns(returns []ReturnDataPoint) []MonthlyReturn {
	if len(returns) == 0 {
		return []MonthlyReturn{}
	}

	byMonth := make(map[string][]ReturnDataPoint)
	for _, r := range returns {
		month := r.Date.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], r)
	}

	monthly := make([]MonthlyReturn, 0, len(byMonth))
	for month, rs := range byMonth {
		monthly = append(monthly, MonthlyReturn{Month: month, Return: compound(rs)})
	}
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month < monthly[j].Month })

	return monthly
}

// YTDReturn is the total return of the slice from January 1 of the final
// point's year onward.
func YTDReturn(series []PriceDataPoint) float64 {
	if len(series) < 2 {
		return 0
	}

	yearStart := time.Date(series[len(series)-1].Date.UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	start := sort.Search(len(series), func(i int) bool {
		return !series[i].Date.Before(yearStart)
	})

	return TotalReturn(series[start:])
}

// BestWorstPeriods slides a fixed-size window over the return series and
// reports the windows with the highest and lowest compounded return.
// Series shorter than the window compare a single full-length window.
func BestWorstPeriods(returns []ReturnDataPoint, window int) (best, worst PeriodReturn) {
	if len(returns) == 0 || window <= 0 {
		return PeriodReturn{}, PeriodReturn{}
	}
	if window > len(returns) {
		window = len(returns)
	}

	for start := 0; start+window <= len(returns); start++ {
		slice := returns[start : start+window]
		period := PeriodReturn{
			Start:  slice[0].Date,
			End:    slice[len(slice)-1].Date,
			Return: compound(slice),
		}
		if start == 0 || period.Return > best.Return {
			best = period
		}
		if start == 0 || period.Return < worst.Return {
			worst = period
		}
	}

	return best, worst
}

// Alpha is the CAPM residual: portfolio return beyond what beta and the
// benchmark's return would predict, using annualized returns and the
// annualized risk-free rate.
func Alpha(portfolioReturn, benchmarkReturn, beta, riskFreeRate float64) float64 {
	return portfolioReturn - (riskFreeRate + beta*(benchmarkReturn-riskFreeRate))
}

// WinRate is the percentage of return periods with a strictly positive
// return.
func WinRate(returns []ReturnDataPoint) float64 {
	if len(returns) == 0 {
		return 0
	}

	wins := 0
	for _, r := range returns {
		if r.Return > 0 {
			wins++
		}
	}

	return float64(wins) / float64(len(returns)) * 100
}
