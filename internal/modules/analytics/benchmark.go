package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Trend regime labels derived from the benchmark's moving averages.
const (
	RegimeBullish = "bullish"
	RegimeBearish = "bearish"
	RegimeNeutral = "neutral"
	RegimeUnknown = "unknown"

	regimeShortWindow = 50
	regimeLongWindow  = 200
	regimeBand        = 0.01
)

// Correlation is the Pearson correlation coefficient of index-aligned
// return slices. Returns 0 when either slice is empty or lengths differ.
func Correlation(portfolio, benchmark []float64) float64 {
	if len(portfolio) < 2 || len(portfolio) != len(benchmark) {
		return 0
	}

	r := stat.Correlation(portfolio, benchmark, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// TrackingError is the standard deviation of the excess-return series
// (portfolio minus benchmark), not annualized.
func TrackingError(portfolio, benchmark []float64) float64 {
	excess := excessReturns(portfolio, benchmark)
	if len(excess) < 2 {
		return 0
	}
	return stat.StdDev(excess, nil)
}

// CaptureRatios reports the ratio of average portfolio return to average
// benchmark return, separately over periods where the benchmark rose (up
// capture) and fell (down capture). A side with no periods or a zero
// benchmark average yields 0.
func CaptureRatios(portfolio, benchmark []float64) (up, down float64) {
	if len(portfolio) != len(benchmark) {
		return 0, 0
	}

	var upPort, upBench, downPort, downBench []float64
	for i, b := range benchmark {
		switch {
		case b > 0:
			upPort = append(upPort, portfolio[i])
			upBench = append(upBench, b)
		case b < 0:
			downPort = append(downPort, portfolio[i])
			downBench = append(downBench, b)
		}
	}

	return captureRatio(upPort, upBench), captureRatio(downPort, downBench)
}

func captureRatio(portfolio, benchmark []float64) float64 {
	if len(benchmark) == 0 {
		return 0
	}
	benchMean := stat.Mean(benchmark, nil)
	if benchMean == 0 {
		return 0
	}
	return stat.Mean(portfolio, nil) / benchMean
}

// InformationRatio is the mean excess return per unit of tracking error;
// 0 when the tracking error is 0.
func InformationRatio(portfolio, benchmark []float64) float64 {
	excess := excessReturns(portfolio, benchmark)
	if len(excess) == 0 {
		return 0
	}

	trackingError := TrackingError(portfolio, benchmark)
	if trackingError == 0 {
		return 0
	}

	return stat.Mean(excess, nil) / trackingError
}

func excessReturns(portfolio, benchmark []float64) []float64 {
	if len(portfolio) != len(benchmark) {
		return nil
	}
	excess := make([]float64, len(portfolio))
	for i := range portfolio {
		excess[i] = portfolio[i] - benchmark[i]
	}
	return excess
}

// CumulativeOutperformance is the difference between portfolio and
// benchmark total returns over their overlapping date range. The series
// are trimmed by date, not index, since they may have different gaps.
func CumulativeOutperformance(portfolio, benchmark []PriceDataPoint) float64 {
	if len(portfolio) < 2 || len(benchmark) < 2 {
		return 0
	}

	start := portfolio[0].Date
	if benchmark[0].Date.After(start) {
		start = benchmark[0].Date
	}
	end := portfolio[len(portfolio)-1].Date
	if benchmark[len(benchmark)-1].Date.Before(end) {
		end = benchmark[len(benchmark)-1].Date
	}

	return TotalReturn(trimSeries(portfolio, start, end)) - TotalReturn(trimSeries(benchmark, start, end))
}

func trimSeries(series []PriceDataPoint, start, end time.Time) []PriceDataPoint {
	var trimmed []PriceDataPoint
	for _, point := range series {
		if !point.Date.Before(start) && !point.Date.After(end) {
			trimmed = append(trimmed, point)
		}
	}
	return trimmed
}

// YearlyComparisons reports portfolio return, benchmark return, and
// their difference for every calendar year present in both value series,
// ordered by year ascending.
func YearlyComparisons(portfolio, benchmark []PriceDataPoint) []YearlyComparison {
	portByYear := groupByYear(portfolio)
	benchByYear := groupByYear(benchmark)

	var years []int
	for year := range portByYear {
		if _, ok := benchByYear[year]; ok {
			years = append(years, year)
		}
	}
	sort.Ints(years)

	comparisons := make([]YearlyComparison, 0, len(years))
	for _, year := range years {
		portReturn := TotalReturn(portByYear[year])
		benchReturn := TotalReturn(benchByYear[year])
		comparisons = append(comparisons, YearlyComparison{
			Year:            year,
			PortfolioReturn: portReturn,
			BenchmarkReturn: benchReturn,
			Difference:      portReturn - benchReturn,
		})
	}

	return comparisons
}

func groupByYear(series []PriceDataPoint) map[int][]PriceDataPoint {
	byYear := make(map[int][]PriceDataPoint)
	for _, point := range series {
		year := point.Date.UTC().Year()
		byYear[year] = append(byYear[year], point)
	}
	return byYear
}

// TrendRegime classifies the benchmark's current trend by comparing its
// 50-day and 200-day simple moving averages, with a 1% neutral band.
// Fewer than 200 closes yield "unknown".
func TrendRegime(closes []float64) string {
	if len(closes) < regimeLongWindow {
		return RegimeUnknown
	}

	shortSMA := talib.Sma(closes, regimeShortWindow)
	longSMA := talib.Sma(closes, regimeLongWindow)

	short := shortSMA[len(shortSMA)-1]
	long := longSMA[len(longSMA)-1]
	if long == 0 {
		return RegimeUnknown
	}

	switch {
	case short > long*(1+regimeBand):
		return RegimeBullish
	case short < long*(1-regimeBand):
		return RegimeBearish
	default:
		return RegimeNeutral
	}
}
