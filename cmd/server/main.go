// Package main is the entry point for the Compass portfolio analytics
// service. It reconstructs portfolio value histories from transaction
// records and market prices, derives risk and performance statistics,
// and serves them over HTTP while background jobs keep prices, cached
// analytics, and off-site backups fresh.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/clients/marketfeed"
	"github.com/aristath/compass/internal/config"
	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/modules/analytics"
	"github.com/aristath/compass/internal/modules/history"
	"github.com/aristath/compass/internal/modules/marketdata"
	"github.com/aristath/compass/internal/modules/portfolio"
	"github.com/aristath/compass/internal/reliability"
	"github.com/aristath/compass/internal/scheduler"
	"github.com/aristath/compass/internal/server"
	"github.com/aristath/compass/internal/work"
	"github.com/aristath/compass/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Compass")

	// Databases. The cache profile trades durability for speed since
	// cached analytics can always be recomputed.
	portfolioDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "portfolio.db"),
		Name: "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "history.db"),
		Name: "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Name:    "cache",
		Profile: database.ProfileCache,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{portfolioDB, historyDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Repositories and services.
	portfolioRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	priceRepo := history.NewPriceRepository(historyDB.Conn(), log)

	feed := marketfeed.NewClient(cfg.MarketDataAPIKey, log)
	if cfg.MarketDataBaseURL != "" {
		feed.SetBaseURL(cfg.MarketDataBaseURL)
	}

	syncService := marketdata.NewSyncService(feed, portfolioRepo, priceRepo, portfolioRepo, log)

	analyticsService := analytics.NewService(portfolioRepo, priceRepo, analytics.Config{
		RiskFreeRate:    cfg.RiskFreeRate,
		BenchmarkSymbol: cfg.BenchmarkSymbol,
	}, log)
	analyticsCache := analytics.NewCache(cacheDB.Conn(), log)
	analyticsService.SetCache(analyticsCache)

	// Background work.
	registry := work.NewRegistry()
	completion := work.NewCompletionTracker()
	processor := work.NewProcessor(registry, completion)

	jobDeps := work.JobDeps{
		Sync:          syncService,
		Analytics:     analyticsService,
		Cache:         analyticsCache,
		Portfolios:    portfolioRepo,
		QuoteInterval: time.Duration(cfg.PriceRefreshMinutes) * time.Minute,
		Log:           log,
	}

	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		objectStore, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}
		jobDeps.Backup = reliability.NewBackupService(
			objectStore,
			[]*database.DB{portfolioDB, historyDB},
			cfg.DataDir,
			cfg.Backup.RetentionDays,
			log,
		)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
	} else {
		log.Info().Msg("Cloud backups disabled (no bucket configured)")
	}

	work.RegisterJobTypes(registry, jobDeps)

	go processor.Run()
	defer processor.Stop()

	// Cron wakes the work processor; the processor itself decides what
	// is stale. The feed counter resets at midnight UTC with the
	// provider's quota.
	cronScheduler := scheduler.New(log)
	mustAddJob(log, cronScheduler, "0 */5 * * * *", scheduler.JobFunc{
		JobName: "work-trigger",
		Fn: func() error {
			processor.Trigger()
			return nil
		},
	})
	mustAddJob(log, cronScheduler, "0 0 0 * * *", scheduler.JobFunc{
		JobName: "feed-counter-reset",
		Fn: func() error {
			feed.ResetDailyCounter()
			return nil
		},
	})
	cronScheduler.Start()
	defer cronScheduler.Stop()

	// Live quote stream (optional). Updates flow into the same stores
	// the polling sync writes to.
	if cfg.MarketDataStreamURL != "" {
		symbols, err := portfolioRepo.ListSymbols()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list symbols for quote stream")
		} else if len(symbols) > 0 {
			stream := marketfeed.NewQuoteStream(cfg.MarketDataStreamURL, symbols, func(update marketfeed.QuoteUpdate) {
				if err := priceRepo.SetLatestPrice(update.Symbol, update.Price); err != nil {
					log.Warn().Err(err).Str("symbol", update.Symbol).Msg("Failed to store streamed quote")
				}
				if err := portfolioRepo.UpdateCurrentPrice(update.Symbol, update.Price); err != nil {
					log.Warn().Err(err).Str("symbol", update.Symbol).Msg("Failed to update current price from stream")
				}
			}, log)
			// Start retries failed connections in the background.
			if err := stream.Start(); err != nil {
				log.Warn().Err(err).Msg("Quote stream not yet connected")
			}
			defer func() {
				if err := stream.Stop(); err != nil {
					log.Warn().Err(err).Msg("Failed to stop quote stream")
				}
			}()
		}
	}

	// HTTP server.
	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		DataDir:        cfg.DataDir,
		PortfolioDB:    portfolioDB,
		HistoryDB:      historyDB,
		CacheDB:        cacheDB,
		PortfolioRepo:  portfolioRepo,
		Analytics:      analyticsService,
		AnalyticsCache: analyticsCache,
		Registry:       registry,
		Completion:     completion,
		Processor:      processor,
		Feed:           feed,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Kick off the first work cycle immediately so a fresh install has
	// prices before the first cron tick.
	processor.Trigger()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down HTTP server cleanly")
	}

	log.Info().Msg("Compass stopped")
}

func mustAddJob(log zerolog.Logger, s *scheduler.Scheduler, schedule string, job scheduler.Job) {
	if err := s.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register scheduled job")
	}
}
