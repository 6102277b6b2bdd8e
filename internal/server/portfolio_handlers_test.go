package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/modules/analytics"
	"github.com/aristath/compass/internal/modules/history"
	"github.com/aristath/compass/internal/modules/portfolio"
)

// apiFixture wires the portfolio and analytics handlers over real
// databases, the way the server assembles them.
func apiFixture(t *testing.T) chi.Router {
	t.Helper()
	dir := t.TempDir()

	portfolioDB, err := database.New(database.Config{Path: filepath.Join(dir, "portfolio.db"), Name: "portfolio"})
	require.NoError(t, err)
	t.Cleanup(func() { portfolioDB.Close() })
	require.NoError(t, portfolioDB.Migrate())

	historyDB, err := database.New(database.Config{Path: filepath.Join(dir, "history.db"), Name: "history"})
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })
	require.NoError(t, historyDB.Migrate())

	repo := portfolio.NewRepository(portfolioDB.Conn(), zerolog.Nop())
	prices := history.NewPriceRepository(historyDB.Conn(), zerolog.Nop())
	svc := analytics.NewService(repo, prices, analytics.Config{RiskFreeRate: 0.02, BenchmarkSymbol: "SPY"}, zerolog.Nop())

	router := chi.NewRouter()
	NewPortfolioHandlers(repo, nil, zerolog.Nop()).RegisterRoutes(router)
	NewAnalyticsHandlers(svc, nil, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAssetLifecycle(t *testing.T) {
	router := apiFixture(t)

	rec := doJSON(t, router, http.MethodPost, "/portfolios/main/assets", map[string]interface{}{
		"name":   "Apple",
		"symbol": "AAPL",
		"type":   "stock",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "main", created.PortfolioID)
	assert.NotZero(t, created.ID)

	rec = doJSON(t, router, http.MethodPost, "/assets/1/transactions", map[string]interface{}{
		"type":     "buy",
		"date":     "2025-01-02T00:00:00Z",
		"quantity": 10.0,
		"price":    100.0,
		"fees":     1.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/portfolios/main/assets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var assets []domain.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	require.Len(t, assets, 1)
	require.Len(t, assets[0].Transactions, 1)
	assert.Equal(t, domain.TransactionBuy, assets[0].Transactions[0].Type)

	rec = doJSON(t, router, http.MethodDelete, "/assets/1/transactions/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/assets/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/assets/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAssetRejectsBadInput(t *testing.T) {
	router := apiFixture(t)

	rec := doJSON(t, router, http.MethodPost, "/portfolios/main/assets", map[string]interface{}{
		"name": "Mystery",
		"type": "yacht",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/portfolios/main/assets", map[string]interface{}{
		"type": "stock",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddTransactionValidation(t *testing.T) {
	router := apiFixture(t)

	rec := doJSON(t, router, http.MethodPost, "/portfolios/main/assets", map[string]interface{}{
		"name": "Apple", "symbol": "AAPL", "type": "stock",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Buy without quantity is rejected by the repository.
	rec = doJSON(t, router, http.MethodPost, "/assets/1/transactions", map[string]interface{}{
		"type": "buy",
		"date": "2025-01-02T00:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown asset.
	rec = doJSON(t, router, http.MethodPost, "/assets/99/transactions", map[string]interface{}{
		"type": "buy", "date": "2025-01-02T00:00:00Z", "quantity": 1.0, "price": 1.0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAnalyticsValidation(t *testing.T) {
	router := apiFixture(t)

	rec := doJSON(t, router, http.MethodGet, "/portfolios/main/analytics?source=hourly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response["error"], "source")
}

func TestGetAnalyticsEmptyPortfolio(t *testing.T) {
	router := apiFixture(t)

	rec := doJSON(t, router, http.MethodGet, "/portfolios/main/analytics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result analytics.AnalyticsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "main", result.Metadata.PortfolioID)
	assert.Zero(t, result.Metadata.Points)
	assert.Zero(t, result.Performance.TotalReturn)
}

func TestGetValuationEmptyPortfolio(t *testing.T) {
	router := apiFixture(t)

	rec := doJSON(t, router, http.MethodGet, "/portfolios/main/valuation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var series []analytics.PriceDataPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Empty(t, series)
}
