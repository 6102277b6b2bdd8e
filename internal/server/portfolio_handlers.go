package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/modules/portfolio"
)

// PortfolioHandlers serves asset and transaction CRUD.
type PortfolioHandlers struct {
	repo     *portfolio.Repository
	onChange func(portfolioID string)
	log      zerolog.Logger
}

// NewPortfolioHandlers creates the portfolio handler set. onChange is
// called with the portfolio ID after every successful mutation.
func NewPortfolioHandlers(repo *portfolio.Repository, onChange func(string), log zerolog.Logger) *PortfolioHandlers {
	if onChange == nil {
		onChange = func(string) {}
	}
	return &PortfolioHandlers{
		repo:     repo,
		onChange: onChange,
		log:      log.With().Str("component", "portfolio_handlers").Logger(),
	}
}

// RegisterRoutes mounts the portfolio routes on the router.
func (h *PortfolioHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{portfolioID}/assets", h.HandleListAssets)
	r.Post("/portfolios/{portfolioID}/assets", h.HandleCreateAsset)
	r.Get("/assets/{assetID}", h.HandleGetAsset)
	r.Delete("/assets/{assetID}", h.HandleDeleteAsset)
	r.Post("/assets/{assetID}/transactions", h.HandleAddTransaction)
	r.Delete("/assets/{assetID}/transactions/{transactionID}", h.HandleDeleteTransaction)
}

// HandleListAssets returns all assets of a portfolio with their transactions.
// GET /api/portfolios/{portfolioID}/assets
func (h *PortfolioHandlers) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	assets, err := h.repo.ListAssets(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to list assets")
		writeError(h.log, w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	if assets == nil {
		assets = []domain.Asset{}
	}

	writeJSON(h.log, w, http.StatusOK, assets)
}

// HandleCreateAsset creates an asset in a portfolio.
// POST /api/portfolios/{portfolioID}/assets
func (h *PortfolioHandlers) HandleCreateAsset(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var asset domain.Asset
	if err := json.NewDecoder(r.Body).Decode(&asset); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	asset.PortfolioID = portfolioID

	if asset.Name == "" {
		writeError(h.log, w, http.StatusBadRequest, "asset name must not be empty")
		return
	}
	if !asset.Type.Valid() {
		writeError(h.log, w, http.StatusBadRequest, "unknown asset type: "+string(asset.Type))
		return
	}

	created, err := h.repo.CreateAsset(asset)
	if err != nil {
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg("Failed to create asset")
		writeError(h.log, w, http.StatusInternalServerError, "failed to create asset")
		return
	}

	h.onChange(portfolioID)
	writeJSON(h.log, w, http.StatusCreated, created)
}

// HandleGetAsset returns a single asset with its transactions.
// GET /api/assets/{assetID}
func (h *PortfolioHandlers) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "assetID"))
	if !ok {
		return
	}

	asset, err := h.repo.GetAsset(id)
	if errors.Is(err, portfolio.ErrNotFound) {
		writeError(h.log, w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to get asset")
		writeError(h.log, w, http.StatusInternalServerError, "failed to get asset")
		return
	}

	writeJSON(h.log, w, http.StatusOK, asset)
}

// HandleDeleteAsset removes an asset and its transactions.
// DELETE /api/assets/{assetID}
func (h *PortfolioHandlers) HandleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "assetID"))
	if !ok {
		return
	}

	// Look the asset up first so the change callback knows the portfolio.
	asset, err := h.repo.GetAsset(id)
	if errors.Is(err, portfolio.ErrNotFound) {
		writeError(h.log, w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to get asset")
		writeError(h.log, w, http.StatusInternalServerError, "failed to delete asset")
		return
	}

	if err := h.repo.DeleteAsset(id); err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to delete asset")
		writeError(h.log, w, http.StatusInternalServerError, "failed to delete asset")
		return
	}

	h.onChange(asset.PortfolioID)
	writeJSON(h.log, w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleAddTransaction records a transaction on an asset.
// POST /api/assets/{assetID}/transactions
func (h *PortfolioHandlers) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, chi.URLParam(r, "assetID"))
	if !ok {
		return
	}

	asset, err := h.repo.GetAsset(id)
	if errors.Is(err, portfolio.ErrNotFound) {
		writeError(h.log, w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to get asset")
		writeError(h.log, w, http.StatusInternalServerError, "failed to add transaction")
		return
	}

	var txn domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	txn.AssetID = id

	if !txn.Type.Valid() {
		writeError(h.log, w, http.StatusBadRequest, "unknown transaction type: "+string(txn.Type))
		return
	}
	if txn.Date.IsZero() {
		writeError(h.log, w, http.StatusBadRequest, "transaction date must be set")
		return
	}

	created, err := h.repo.AddTransaction(txn)
	if err != nil {
		// The repository validates quantity presence and fee sign.
		writeError(h.log, w, http.StatusBadRequest, err.Error())
		return
	}

	h.onChange(asset.PortfolioID)
	writeJSON(h.log, w, http.StatusCreated, created)
}

// HandleDeleteTransaction removes a single transaction.
// DELETE /api/assets/{assetID}/transactions/{transactionID}
func (h *PortfolioHandlers) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	assetID, ok := h.parseID(w, chi.URLParam(r, "assetID"))
	if !ok {
		return
	}
	id, ok := h.parseID(w, chi.URLParam(r, "transactionID"))
	if !ok {
		return
	}

	asset, err := h.repo.GetAsset(assetID)
	if errors.Is(err, portfolio.ErrNotFound) {
		writeError(h.log, w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("asset_id", assetID).Msg("Failed to get asset")
		writeError(h.log, w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	err = h.repo.DeleteTransaction(id)
	if errors.Is(err, portfolio.ErrNotFound) {
		writeError(h.log, w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("transaction_id", id).Msg("Failed to delete transaction")
		writeError(h.log, w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	h.onChange(asset.PortfolioID)
	writeJSON(h.log, w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *PortfolioHandlers) parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(h.log, w, http.StatusBadRequest, "invalid id: "+raw)
		return 0, false
	}
	return id, true
}
