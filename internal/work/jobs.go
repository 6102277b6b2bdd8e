package work

import (
	"context"
	"time"

	"github.com/aristath/compass/internal/modules/analytics"
	"github.com/aristath/compass/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// Work type IDs.
const (
	JobQuoteSync        = "prices:quotes"
	JobHistorySync      = "prices:history"
	JobAnalyticsRefresh = "analytics:refresh"
	JobCachePrune       = "cache:prune"
	JobBackup           = "backup:create"
)

// PortfolioLister enumerates portfolios for per-portfolio work.
type PortfolioLister interface {
	ListPortfolioIDs() ([]string, error)
}

// BackupRunner creates an off-site backup of the databases.
type BackupRunner interface {
	CreateBackup(ctx context.Context) error
}

// JobDeps carries the services the standard work types execute against.
// Backup is optional; without it the backup work type is not registered.
type JobDeps struct {
	Sync          *marketdata.SyncService
	Analytics     *analytics.Service
	Cache         *analytics.Cache
	Portfolios    PortfolioLister
	Backup        BackupRunner
	QuoteInterval time.Duration
	Log           zerolog.Logger
}

// RegisterJobTypes wires the standard background work types into the
// registry: quote and history sync feed the price stores, analytics
// refresh recomputes cached results per portfolio after fresh quotes,
// and the housekeeping jobs prune the cache and push backups.
func RegisterJobTypes(registry *Registry, deps JobDeps) {
	log := deps.Log.With().Str("component", "jobs").Logger()

	global := func() []string { return []string{""} }
	quoteInterval := deps.QuoteInterval
	if quoteInterval == 0 {
		quoteInterval = 30 * time.Minute
	}

	registry.Register(&WorkType{
		ID:           JobQuoteSync,
		Interval:     quoteInterval,
		Priority:     PriorityHigh,
		FindSubjects: global,
		Execute: func(ctx context.Context, _ string) error {
			_, err := deps.Sync.RefreshQuotes(ctx)
			return err
		},
	})

	registry.Register(&WorkType{
		ID:           JobHistorySync,
		Interval:     24 * time.Hour,
		Priority:     PriorityHigh,
		FindSubjects: global,
		Execute: func(ctx context.Context, _ string) error {
			_, err := deps.Sync.RefreshHistory(ctx)
			return err
		},
	})

	registry.Register(&WorkType{
		ID:        JobAnalyticsRefresh,
		DependsOn: []string{JobQuoteSync},
		Interval:  time.Hour,
		Priority:  PriorityMedium,
		FindSubjects: func() []string {
			ids, err := deps.Portfolios.ListPortfolioIDs()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to list portfolios for analytics refresh")
				return nil
			}
			return ids
		},
		Execute: func(_ context.Context, portfolioID string) error {
			for _, source := range []analytics.DataSource{analytics.SourceDaily, analytics.SourceWeekly} {
				if _, err := deps.Analytics.ComputeAnalytics(portfolioID, source); err != nil {
					return err
				}
			}
			return nil
		},
	})

	registry.Register(&WorkType{
		ID:           JobCachePrune,
		Interval:     24 * time.Hour,
		Priority:     PriorityLow,
		FindSubjects: global,
		Execute: func(_ context.Context, _ string) error {
			removed, err := deps.Cache.Prune(7 * 24 * time.Hour)
			if err != nil {
				return err
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("Pruned stale analytics cache entries")
			}
			return nil
		},
	})

	if deps.Backup != nil {
		registry.Register(&WorkType{
			ID:           JobBackup,
			Interval:     24 * time.Hour,
			Priority:     PriorityLow,
			FindSubjects: global,
			Execute: func(ctx context.Context, _ string) error {
				return deps.Backup.CreateBackup(ctx)
			},
		})
	}
}
