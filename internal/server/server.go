// Package server provides the HTTP server and routing for Compass.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/modules/analytics"
	"github.com/aristath/compass/internal/modules/portfolio"
	"github.com/aristath/compass/internal/work"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Port        int
	DevMode     bool
	DataDir     string
	PortfolioDB *database.DB
	HistoryDB   *database.DB
	CacheDB     *database.DB

	PortfolioRepo  *portfolio.Repository
	Analytics      *analytics.Service
	AnalyticsCache *analytics.Cache
	Registry       *work.Registry
	Completion     *work.CompletionTracker
	Processor      *work.Processor
	Feed           FeedStatus
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config

	portfolioHandlers *PortfolioHandlers
	analyticsHandlers *AnalyticsHandlers
	systemHandlers    *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	// Mutations invalidate cached analytics and force the next refresh
	// cycle to recompute the portfolio.
	onChange := func(portfolioID string) {
		if cfg.AnalyticsCache != nil {
			if err := cfg.AnalyticsCache.Invalidate(portfolioID); err != nil {
				s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to invalidate analytics cache")
			}
		}
		if cfg.Completion != nil {
			cfg.Completion.Clear(work.JobAnalyticsRefresh, portfolioID)
		}
	}

	s.portfolioHandlers = NewPortfolioHandlers(cfg.PortfolioRepo, onChange, cfg.Log)
	s.analyticsHandlers = NewAnalyticsHandlers(cfg.Analytics, cfg.AnalyticsCache, cfg.Log)
	s.systemHandlers = NewSystemHandlers(
		cfg.Log,
		cfg.DataDir,
		[]*database.DB{cfg.PortfolioDB, cfg.HistoryDB, cfg.CacheDB},
		cfg.Registry,
		cfg.Completion,
		cfg.Processor,
		cfg.Feed,
	)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (outside the /api prefix for load balancers)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		s.portfolioHandlers.RegisterRoutes(r)
		s.analyticsHandlers.RegisterRoutes(r)
		s.systemHandlers.RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.log, w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "compass",
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// writeJSON writes a JSON response
func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func writeError(log zerolog.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(log, w, status, map[string]string{"error": message})
}
