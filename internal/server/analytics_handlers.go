package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/modules/analytics"
)

// AnalyticsHandlers serves computed portfolio analytics.
type AnalyticsHandlers struct {
	svc   *analytics.Service
	cache *analytics.Cache
	log   zerolog.Logger
}

// NewAnalyticsHandlers creates the analytics handler set. cache may be
// nil, in which case every request computes fresh.
func NewAnalyticsHandlers(svc *analytics.Service, cache *analytics.Cache, log zerolog.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		svc:   svc,
		cache: cache,
		log:   log.With().Str("component", "analytics_handlers").Logger(),
	}
}

// RegisterRoutes mounts the analytics routes on the router.
func (h *AnalyticsHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{portfolioID}/analytics", h.HandleGetAnalytics)
	r.Get("/portfolios/{portfolioID}/valuation", h.HandleGetValuation)
}

// HandleGetAnalytics returns the full analytics result for a portfolio.
// GET /api/portfolios/{portfolioID}/analytics?source=daily|weekly&refresh=true
//
// Cached results are served unless refresh is requested; a cache miss
// falls through to a fresh computation.
func (h *AnalyticsHandlers) HandleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	source := sourceParam(r)
	refresh := r.URL.Query().Get("refresh") == "true"

	if h.cache != nil && !refresh && source.Valid() {
		cached, found, err := h.cache.Get(portfolioID, source)
		if err != nil {
			h.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Analytics cache read failed")
		} else if found {
			writeJSON(h.log, w, http.StatusOK, cached)
			return
		}
	}

	result, err := h.svc.ComputeAnalytics(portfolioID, source)
	if err != nil {
		h.writeAnalyticsError(w, portfolioID, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, result)
}

// HandleGetValuation returns the reconstructed value series without the
// metric engines.
// GET /api/portfolios/{portfolioID}/valuation?source=daily|weekly
func (h *AnalyticsHandlers) HandleGetValuation(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	series, err := h.svc.ValuationSeries(portfolioID, sourceParam(r))
	if err != nil {
		h.writeAnalyticsError(w, portfolioID, err)
		return
	}
	if series == nil {
		series = []analytics.PriceDataPoint{}
	}

	writeJSON(h.log, w, http.StatusOK, series)
}

func (h *AnalyticsHandlers) writeAnalyticsError(w http.ResponseWriter, portfolioID string, err error) {
	var verr *analytics.ValidationError
	if errors.As(err, &verr) {
		writeError(h.log, w, http.StatusBadRequest, verr.Error())
		return
	}

	h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Analytics computation failed")
	writeError(h.log, w, http.StatusInternalServerError, "failed to compute analytics")
}

// sourceParam reads the sampling frequency from the query, defaulting
// to daily. Invalid values pass through so the service can reject them.
func sourceParam(r *http.Request) analytics.DataSource {
	raw := r.URL.Query().Get("source")
	if raw == "" {
		return analytics.SourceDaily
	}
	return analytics.DataSource(raw)
}
