package analytics

import (
	"fmt"
	"time"

	"github.com/aristath/compass/internal/domain"
	"github.com/rs/zerolog"
)

// Default confidence level for Value at Risk.
const DefaultVaRConfidence = 0.95

// AssetSource is the read surface the service needs from the portfolio
// store.
type AssetSource interface {
	ListAssets(portfolioID string) ([]domain.Asset, error)
}

// Config carries the external constants of the analytics pipeline.
type Config struct {
	// RiskFreeRate is the annualized risk-free rate used by Sharpe and
	// alpha.
	RiskFreeRate float64
	// BenchmarkSymbol is the reference index ticker.
	BenchmarkSymbol string
	// VaRConfidence defaults to DefaultVaRConfidence when 0.
	VaRConfidence float64
}

// Service composes the analytics pipeline: snapshot assets and prices,
// reconstruct the value series, and run the metric engines over it.
type Service struct {
	assets AssetSource
	prices PriceSource
	cfg    Config
	cache  *Cache
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new analytics service.
func NewService(assets AssetSource, prices PriceSource, cfg Config, log zerolog.Logger) *Service {
	if cfg.VaRConfidence == 0 {
		cfg.VaRConfidence = DefaultVaRConfidence
	}
	return &Service{
		assets: assets,
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("component", "analytics").Logger(),
	}
}

// SetCache enables result caching. Optional; without it every call
// computes fresh.
func (s *Service) SetCache(cache *Cache) {
	s.cache = cache
}

// ComputeAnalytics fetches a snapshot of the portfolio's assets and
// prices, reconstructs the value series at the requested sampling
// frequency, and derives the full set of risk, performance, benchmark,
// and allocation statistics. A portfolio without transactions yields a
// degenerate-but-valid zero result, not an error.
func (s *Service) ComputeAnalytics(portfolioID string, source DataSource) (AnalyticsResult, error) {
	if portfolioID == "" {
		return AnalyticsResult{}, NewValidationError("portfolio_id", "must not be empty")
	}
	if !source.Valid() {
		return AnalyticsResult{}, NewValidationError("source", fmt.Sprintf("must be %q or %q, got %q", SourceDaily, SourceWeekly, source))
	}

	assets, err := s.assets.ListAssets(portfolioID)
	if err != nil {
		return AnalyticsResult{}, fmt.Errorf("failed to load assets: %w", err)
	}

	now := s.now()
	result, err := s.compute(portfolioID, source, assets, now)
	if err != nil {
		return AnalyticsResult{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(portfolioID, source, result); err != nil {
			s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to cache analytics result")
		}
	}

	return result, nil
}

// ValuationSeries reconstructs just the portfolio value series at the
// requested sampling frequency, without the metric engines.
func (s *Service) ValuationSeries(portfolioID string, source DataSource) ([]PriceDataPoint, error) {
	if portfolioID == "" {
		return nil, NewValidationError("portfolio_id", "must not be empty")
	}
	if !source.Valid() {
		return nil, NewValidationError("source", fmt.Sprintf("must be %q or %q, got %q", SourceDaily, SourceWeekly, source))
	}

	assets, err := s.assets.ListAssets(portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	series, err := BuildValuationSeries(assets, s.prices, s.now())
	if err != nil {
		return nil, err
	}
	if source == SourceWeekly {
		series = SampleWeekly(series)
	}
	return series, nil
}

func (s *Service) compute(portfolioID string, source DataSource, assets []domain.Asset, now time.Time) (AnalyticsResult, error) {
	daily, err := BuildValuationSeries(assets, s.prices, now)
	if err != nil {
		return AnalyticsResult{}, err
	}

	series := daily
	if source == SourceWeekly {
		series = SampleWeekly(daily)
	}
	returns := CalculateReturns(series)

	benchmarkSeries, benchmarkCloses, err := s.loadBenchmark(daily, source)
	if err != nil {
		return AnalyticsResult{}, err
	}
	benchmarkReturns := CalculateReturns(benchmarkSeries)

	portAligned, benchAligned := AlignReturns(returns, benchmarkReturns)
	beta := Beta(portAligned, benchAligned)

	totalReturn := TotalReturn(series)
	annualized := AnnualizedReturn(totalReturn, len(series)-1, source)
	benchAnnualized := AnnualizedReturn(TotalReturn(benchmarkSeries), len(benchmarkSeries)-1, source)
	best, worst := BestWorstPeriods(returns, source.BestWorstWindow())

	result := AnalyticsResult{
		Risk: RiskMetrics{
			Volatility:        Volatility(returns, source),
			MaxDrawdown:       MaxDrawdown(series),
			Beta:              beta,
			ValueAtRisk:       ValueAtRisk(returns, s.cfg.VaRConfidence),
			SharpeRatio:       SharpeRatio(returns, s.cfg.RiskFreeRate, source),
			DownsideDeviation: DownsideDeviation(returns, 0, source),
			Diversification:   AssetDiversification(assets),
		},
		Performance: PerformanceMetrics{
			TotalReturn:        totalReturn,
			TimeWeightedReturn: TimeWeightedReturn(series, CollectCashFlows(assets)),
			AnnualizedReturn:   annualized,
			YTDReturn:          YTDReturn(series),
			RollingReturns:     RollingReturns(series, source),
			MonthlyReturns:     MonthlyReturns(returns),
			BestPeriod:         best,
			WorstPeriod:        worst,
			Alpha:              Alpha(annualized, benchAnnualized, beta, s.cfg.RiskFreeRate),
			WinRate:            WinRate(returns),
		},
		Benchmark: s.compareBenchmark(series, benchmarkSeries, benchmarkCloses, portAligned, benchAligned),
		Allocation: AssetAllocation{
			ByValue: AllocationByType(assets, now),
			ByCount: CountAssetTypes(assets),
		},
		Metadata: Metadata{
			PortfolioID:  portfolioID,
			Source:       source,
			CalculatedAt: now.UTC(),
			Points:       len(series),
		},
	}
	if len(series) > 0 {
		result.Metadata.SeriesStart = series[0].Date
		result.Metadata.SeriesEnd = series[len(series)-1].Date
	}

	return result, nil
}

// loadBenchmark fetches the benchmark closes covering the portfolio's
// span and reduces them to the requested sampling frequency. An empty
// portfolio series or missing benchmark data produce empty slices, which
// flow through the comparison engines as zero results.
func (s *Service) loadBenchmark(daily []PriceDataPoint, source DataSource) ([]PriceDataPoint, []float64, error) {
	if len(daily) == 0 || s.cfg.BenchmarkSymbol == "" {
		return nil, nil, nil
	}

	bars, err := s.prices.GetDailyCloses(s.cfg.BenchmarkSymbol, daily[0].Date)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load benchmark %s: %w", s.cfg.BenchmarkSymbol, err)
	}

	series := BarsToSeries(bars)
	closes := make([]float64, len(series))
	for i, point := range series {
		closes[i] = point.Value
	}

	if source == SourceWeekly {
		series = SampleWeekly(series)
	}

	return series, closes, nil
}

func (s *Service) compareBenchmark(portfolio, benchmark []PriceDataPoint, closes []float64, portAligned, benchAligned []float64) BenchmarkComparison {
	upCapture, downCapture := CaptureRatios(portAligned, benchAligned)
	return BenchmarkComparison{
		Symbol:                   s.cfg.BenchmarkSymbol,
		Correlation:              Correlation(portAligned, benchAligned),
		TrackingError:            TrackingError(portAligned, benchAligned),
		UpCapture:                upCapture,
		DownCapture:              downCapture,
		InformationRatio:         InformationRatio(portAligned, benchAligned),
		CumulativeOutperformance: CumulativeOutperformance(portfolio, benchmark),
		YearlyComparisons:        YearlyComparisons(portfolio, benchmark),
		TrendRegime:              TrendRegime(closes),
	}
}
