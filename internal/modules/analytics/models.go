// Package analytics reconstructs portfolio value series from transaction
// history and derives risk, performance, and benchmark statistics from them.
// Every calculation in this package is a pure function over in-memory
// slices: deterministic, no I/O, defined zero results on insufficient data.
package analytics

import "time"

// DataSource selects the sampling frequency of the value series.
type DataSource string

const (
	SourceDaily  DataSource = "daily"
	SourceWeekly DataSource = "weekly"
)

// Valid reports whether the data source is one of the known values.
func (s DataSource) Valid() bool {
	return s == SourceDaily || s == SourceWeekly
}

// PeriodsPerYear returns the annualization factor for the source.
func (s DataSource) PeriodsPerYear() float64 {
	if s == SourceWeekly {
		return 52
	}
	return 252
}

// BestWorstWindow returns the sliding-window length used for the
// best/worst period search.
func (s DataSource) BestWorstWindow() int {
	if s == SourceWeekly {
		return 12
	}
	return 30
}

// PriceDataPoint is a portfolio (or asset) value on a given date.
type PriceDataPoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Value float64   `json:"value" msgpack:"value"`
}

// ReturnDataPoint is the period return ending on Date, computed from the
// value pair (i-1, i) of the series that produced it.
type ReturnDataPoint struct {
	Date   time.Time `json:"date" msgpack:"date"`
	Return float64   `json:"return" msgpack:"return"`
}

// CashFlow is a net external flow into (positive) or out of (negative)
// the portfolio on a date. Used by the time-weighted return to neutralize
// deposit/withdrawal distortion.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

// TypeShare is a per-asset-type percentage, used for both value-weighted
// allocation and count-based diversification.
type TypeShare struct {
	Type       string  `json:"type" msgpack:"type"`
	Value      float64 `json:"value,omitempty" msgpack:"value"`
	Percentage float64 `json:"percentage" msgpack:"percentage"`
}

// TypeCount is a per-asset-type tally, independent of value.
type TypeCount struct {
	Type  string `json:"type" msgpack:"type"`
	Count int    `json:"count" msgpack:"count"`
}

// RiskMetrics holds the dispersion and tail statistics of the portfolio.
type RiskMetrics struct {
	Volatility        float64     `json:"volatility" msgpack:"volatility"`
	MaxDrawdown       float64     `json:"max_drawdown" msgpack:"max_drawdown"`
	Beta              float64     `json:"beta" msgpack:"beta"`
	ValueAtRisk       float64     `json:"value_at_risk" msgpack:"value_at_risk"`
	SharpeRatio       float64     `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
	DownsideDeviation float64     `json:"downside_deviation" msgpack:"downside_deviation"`
	Diversification   []TypeShare `json:"diversification" msgpack:"diversification"`
}

// RollingReturn is a trailing-window return over the given number of years.
// Partial reports whether history was shorter than the full window.
type RollingReturn struct {
	Years   int     `json:"years" msgpack:"years"`
	Return  float64 `json:"return" msgpack:"return"`
	Partial bool    `json:"partial" msgpack:"partial"`
}

// MonthlyReturn is the compounded return of one calendar month.
type MonthlyReturn struct {
	Month  string  `json:"month" msgpack:"month"` // "2006-01"
	Return float64 `json:"return" msgpack:"return"`
}

// PeriodReturn is a compounded return over a dated window.
type PeriodReturn struct {
	Start  time.Time `json:"start" msgpack:"start"`
	End    time.Time `json:"end" msgpack:"end"`
	Return float64   `json:"return" msgpack:"return"`
}

// PerformanceMetrics holds the return statistics of the portfolio.
type PerformanceMetrics struct {
	TotalReturn        float64         `json:"total_return" msgpack:"total_return"`
	TimeWeightedReturn float64         `json:"time_weighted_return" msgpack:"time_weighted_return"`
	AnnualizedReturn   float64         `json:"annualized_return" msgpack:"annualized_return"`
	YTDReturn          float64         `json:"ytd_return" msgpack:"ytd_return"`
	RollingReturns     []RollingReturn `json:"rolling_returns" msgpack:"rolling_returns"`
	MonthlyReturns     []MonthlyReturn `json:"monthly_returns" msgpack:"monthly_returns"`
	BestPeriod         PeriodReturn    `json:"best_period" msgpack:"best_period"`
	WorstPeriod        PeriodReturn    `json:"worst_period" msgpack:"worst_period"`
	Alpha              float64         `json:"alpha" msgpack:"alpha"`
	WinRate            float64         `json:"win_rate" msgpack:"win_rate"`
}

// YearlyComparison compares portfolio and benchmark returns for one
// calendar year present in both series.
type YearlyComparison struct {
	Year            int     `json:"year" msgpack:"year"`
	PortfolioReturn float64 `json:"portfolio_return" msgpack:"portfolio_return"`
	BenchmarkReturn float64 `json:"benchmark_return" msgpack:"benchmark_return"`
	Difference      float64 `json:"difference" msgpack:"difference"`
}

// BenchmarkComparison holds statistics relating the portfolio to a
// reference index.
type BenchmarkComparison struct {
	Symbol                   string             `json:"symbol" msgpack:"symbol"`
	Correlation              float64            `json:"correlation" msgpack:"correlation"`
	TrackingError            float64            `json:"tracking_error" msgpack:"tracking_error"`
	UpCapture                float64            `json:"up_capture" msgpack:"up_capture"`
	DownCapture              float64            `json:"down_capture" msgpack:"down_capture"`
	InformationRatio         float64            `json:"information_ratio" msgpack:"information_ratio"`
	CumulativeOutperformance float64            `json:"cumulative_outperformance" msgpack:"cumulative_outperformance"`
	YearlyComparisons        []YearlyComparison `json:"yearly_comparisons" msgpack:"yearly_comparisons"`
	TrendRegime              string             `json:"trend_regime" msgpack:"trend_regime"`
}

// AssetAllocation groups current holdings by asset type.
type AssetAllocation struct {
	ByValue []TypeShare `json:"by_value" msgpack:"by_value"`
	ByCount []TypeCount `json:"by_count" msgpack:"by_count"`
}

// Metadata describes one analytics invocation.
type Metadata struct {
	PortfolioID  string     `json:"portfolio_id" msgpack:"portfolio_id"`
	Source       DataSource `json:"source" msgpack:"source"`
	CalculatedAt time.Time  `json:"calculated_at" msgpack:"calculated_at"`
	SeriesStart  time.Time  `json:"series_start,omitempty" msgpack:"series_start"`
	SeriesEnd    time.Time  `json:"series_end,omitempty" msgpack:"series_end"`
	Points       int        `json:"points" msgpack:"points"`
}

// AnalyticsResult is the composite output of one analytics invocation.
// It is a pure function of its inputs and is never mutated after
// construction.
type AnalyticsResult struct {
	Risk        RiskMetrics         `json:"risk_metrics" msgpack:"risk_metrics"`
	Performance PerformanceMetrics  `json:"performance_metrics" msgpack:"performance_metrics"`
	Benchmark   BenchmarkComparison `json:"benchmark_comparison" msgpack:"benchmark_comparison"`
	Allocation  AssetAllocation     `json:"asset_allocation" msgpack:"asset_allocation"`
	Metadata    Metadata            `json:"metadata" msgpack:"metadata"`
}

// dayKey truncates a time to UTC midnight, the granularity at which
// value points and price bars are keyed.
func dayKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
