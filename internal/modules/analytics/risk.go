package analytics

import (
	"math"
	"sort"

	"github.com/aristath/compass/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Volatility is the sample standard deviation of the return series,
// annualized by sqrt(periodsPerYear). Empty input yields 0.
func Volatility(returns []ReturnDataPoint, source DataSource) float64 {
	values := returnValues(returns)
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil) * math.Sqrt(source.PeriodsPerYear())
}

// MaxDrawdown is the largest peak-to-trough decline of the value series,
// as a fraction in [0,1]. A zero peak is skipped to avoid division by
// zero.
func MaxDrawdown(series []PriceDataPoint) float64 {
	var peak, maxDrawdown float64
	for _, point := range series {
		if point.Value > peak {
			peak = point.Value
		}
		if peak == 0 {
			continue
		}
		drawdown := (peak - point.Value) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// Beta is Cov(portfolio, benchmark) / Var(benchmark) over index-aligned
// return slices. Returns 0 when either slice is empty, lengths differ,
// or benchmark variance is 0.
func Beta(portfolio, benchmark []float64) float64 {
	if len(portfolio) == 0 || len(benchmark) == 0 || len(portfolio) != len(benchmark) {
		return 0
	}

	variance := stat.Variance(benchmark, nil)
	if variance == 0 {
		return 0
	}

	return stat.Covariance(portfolio, benchmark, nil) / variance
}

// ValueAtRisk is the loss magnitude exceeded only (1-confidence) of the
// time, e.g. at 0.95 the 95th percentile of the loss distribution.
// Reported as a non-negative magnitude; 0 when the percentile falls on a
// gain or the input is empty.
func ValueAtRisk(returns []ReturnDataPoint, confidence float64) float64 {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}

	losses := make([]float64, len(returns))
	for i, r := range returns {
		losses[i] = -r.Return
	}
	sort.Float64s(losses)

	idx := int(confidence * float64(len(losses)))
	if idx >= len(losses) {
		idx = len(losses) - 1
	}

	if losses[idx] < 0 {
		return 0
	}
	return losses[idx]
}

// SharpeRatio is the mean excess return per unit of standard deviation,
// annualized by sqrt(periodsPerYear). The annualized risk-free rate is
// converted to per-period by dividing by periodsPerYear. Zero standard
// deviation yields 0.
func SharpeRatio(returns []ReturnDataPoint, riskFreeRate float64, source DataSource) float64 {
	values := returnValues(returns)
	if len(values) < 2 {
		return 0
	}

	stdDev := stat.StdDev(values, nil)
	if stdDev == 0 {
		return 0
	}

	perPeriodRate := riskFreeRate / source.PeriodsPerYear()
	excess := stat.Mean(values, nil) - perPeriodRate

	return excess / stdDev * math.Sqrt(source.PeriodsPerYear())
}

// DownsideDeviation is the dispersion of returns below the target
// (normally 0), annualized like Volatility. Deviations are squared over
// the full sample count, so sparse losses dilute toward zero.
func DownsideDeviation(returns []ReturnDataPoint, target float64, source DataSource) float64 {
	if len(returns) == 0 {
		return 0
	}

	var sumSquares float64
	for _, r := range returns {
		if r.Return < target {
			diff := r.Return - target
			sumSquares += diff * diff
		}
	}

	return math.Sqrt(sumSquares/float64(len(returns))) * math.Sqrt(source.PeriodsPerYear())
}

// AssetDiversification reports the share of distinct assets per type, by
// count. Shares sum to 100 across the types present. Empty input yields
// an empty list.
func AssetDiversification(assets []domain.Asset) []TypeShare {
	if len(assets) == 0 {
		return []TypeShare{}
	}

	counts := make(map[string]int)
	for _, asset := range assets {
		counts[string(asset.Type)]++
	}

	total := float64(len(assets))
	shares := make([]TypeShare, 0, len(counts))
	for assetType, count := range counts {
		shares = append(shares, TypeShare{
			Type:       assetType,
			Percentage: float64(count) / total * 100,
		})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Type < shares[j].Type })

	return shares
}
