// Package marketdata keeps the stored prices converged with the
// upstream provider.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/compass/internal/clients/marketfeed"
	"github.com/aristath/compass/internal/modules/history"
	"github.com/rs/zerolog"
)

const (
	// batchSize limits how many symbols one refresh pass touches before
	// pausing, respecting upstream rate limits.
	batchSize = 5

	// batchDelay is the pause between symbol batches.
	batchDelay = 15 * time.Second
)

// Feed is the upstream surface the sync needs from the market-data
// client.
type Feed interface {
	GetQuote(ctx context.Context, symbol string) (marketfeed.Quote, error)
	GetDailyHistory(ctx context.Context, symbol string, full bool) ([]marketfeed.HistoryBar, error)
}

// SymbolLister enumerates the symbols the portfolios currently hold.
type SymbolLister interface {
	ListSymbols() ([]string, error)
}

// PriceStore is the persistence surface the sync writes refreshed data
// to, plus the first-sight check that decides full versus compact
// history fetches.
type PriceStore interface {
	UpsertDailyPrices(prices []history.DailyPrice) error
	SetLatestPrice(symbol string, price float64) error
	EarliestDate(symbol string) (time.Time, bool, error)
}

// CurrentPriceUpdater pushes refreshed quotes onto the held assets.
type CurrentPriceUpdater interface {
	UpdateCurrentPrice(symbol string, price float64) error
}

// SyncResult summarizes one refresh pass.
type SyncResult struct {
	Refreshed []string
	Failed    []string
}

// SyncService refreshes quotes and daily history for every held symbol,
// in small batches with inter-batch delays. Failures are logged and
// skipped per symbol; stale data is not an error, analytics simply
// operates on whatever is already stored.
type SyncService struct {
	feed     Feed
	symbols  SymbolLister
	prices   PriceStore
	assets   CurrentPriceUpdater
	interval time.Duration
	log      zerolog.Logger

	// sleep is swapped out by tests.
	sleep func(time.Duration)
}

// NewSyncService creates a new market data sync service
func NewSyncService(feed Feed, symbols SymbolLister, prices PriceStore, assets CurrentPriceUpdater, log zerolog.Logger) *SyncService {
	return &SyncService{
		feed:     feed,
		symbols:  symbols,
		prices:   prices,
		assets:   assets,
		interval: batchDelay,
		log:      log.With().Str("component", "market_sync").Logger(),
		sleep:    time.Sleep,
	}
}

// RefreshQuotes fetches the current quote for every held symbol and
// writes it to both the latest-price store and the assets' current
// prices.
func (s *SyncService) RefreshQuotes(ctx context.Context) (SyncResult, error) {
	symbols, err := s.symbols.ListSymbols()
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for batchStart := 0; batchStart < len(symbols); batchStart += batchSize {
		if batchStart > 0 {
			s.sleep(s.interval)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := symbols[batchStart:min(batchStart+batchSize, len(symbols))]
		for _, symbol := range batch {
			if err := s.refreshQuote(ctx, symbol); err != nil {
				if isRateLimit(err) {
					s.log.Warn().Str("symbol", symbol).Msg("Rate limit reached, stopping quote refresh")
					result.Failed = append(result.Failed, symbol)
					return result, nil
				}
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote refresh failed, skipping")
				result.Failed = append(result.Failed, symbol)
				continue
			}
			result.Refreshed = append(result.Refreshed, symbol)
		}
	}

	s.log.Info().Int("refreshed", len(result.Refreshed)).Int("failed", len(result.Failed)).Msg("Quote refresh complete")
	return result, nil
}

func (s *SyncService) refreshQuote(ctx context.Context, symbol string) error {
	quote, err := s.feed.GetQuote(ctx, symbol)
	if err != nil {
		return err
	}
	if err := s.prices.SetLatestPrice(symbol, quote.Price); err != nil {
		return err
	}
	return s.assets.UpdateCurrentPrice(symbol, quote.Price)
}

// RefreshHistory fetches the daily OHLCV series for every held symbol
// and upserts it into the history store. A symbol with no stored bars
// yet gets the provider's complete history; later passes fetch the
// compact recent window.
func (s *SyncService) RefreshHistory(ctx context.Context) (SyncResult, error) {
	symbols, err := s.symbols.ListSymbols()
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for batchStart := 0; batchStart < len(symbols); batchStart += batchSize {
		if batchStart > 0 {
			s.sleep(s.interval)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := symbols[batchStart:min(batchStart+batchSize, len(symbols))]
		for _, symbol := range batch {
			if err := s.refreshHistory(ctx, symbol); err != nil {
				if isRateLimit(err) {
					s.log.Warn().Str("symbol", symbol).Msg("Rate limit reached, stopping history refresh")
					result.Failed = append(result.Failed, symbol)
					return result, nil
				}
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("History refresh failed, skipping")
				result.Failed = append(result.Failed, symbol)
				continue
			}
			result.Refreshed = append(result.Refreshed, symbol)
		}
	}

	s.log.Info().Int("refreshed", len(result.Refreshed)).Int("failed", len(result.Failed)).Msg("History refresh complete")
	return result, nil
}

func (s *SyncService) refreshHistory(ctx context.Context, symbol string) error {
	_, seen, err := s.prices.EarliestDate(symbol)
	if err != nil {
		return err
	}

	bars, err := s.feed.GetDailyHistory(ctx, symbol, !seen)
	if err != nil {
		return err
	}

	prices := make([]history.DailyPrice, 0, len(bars))
	for _, bar := range bars {
		prices = append(prices, history.DailyPrice{
			Symbol: symbol,
			Date:   bar.Date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}

	return s.prices.UpsertDailyPrices(prices)
}

func isRateLimit(err error) bool {
	var rateLimited marketfeed.ErrRateLimitExceeded
	return errors.As(err, &rateLimited)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
