package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/events"
	"github.com/aristath/nestegg/internal/modules/portfolio"
	"github.com/aristath/nestegg/internal/modules/scoring"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/aristath/nestegg/internal/modules/valuation"
	"github.com/aristath/nestegg/internal/modules/withdrawal"
	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubQuotes map[string]float64

func (q stubQuotes) GetPrice(_ context.Context, symbol string) (float64, error) {
	if p, ok := q[symbol]; ok {
		return p, nil
	}
	return 0, domain.ErrPriceUnavailable
}

func newTestHandler(t *testing.T) *Handler {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE portfolios (
		user_id TEXT PRIMARY KEY, id TEXT NOT NULL UNIQUE, data BLOB NOT NULL,
		version INTEGER NOT NULL DEFAULT 1, created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL)`)
	require.NoError(t, err)

	log := zerolog.Nop()
	thresholds := domain.DefaultThresholds()
	calc := tax.NewCalculator(tax.Kenya)
	svc := portfolio.NewService(
		portfolio.NewRepository(db, log),
		valuation.NewEngine(stubQuotes{"AAPL": 150}, domain.DefaultMetadata(), thresholds, []string{"NSE"}, log),
		scoring.NewHealthScorer(thresholds),
		withdrawal.NewPlanner(withdrawal.Config{Trials: 100, Seed: 1, Workers: 2}, log),
		calc,
		events.NewDetector(thresholds, calc, tax.Kenya, log),
		events.NewManager(log),
		log,
		portfolio.WithClock(func() time.Time { return testNow }),
	)
	return NewHandler(svc, log)
}

func newTestRouter(t *testing.T) http.Handler {
	router := chi.NewRouter()
	newTestHandler(t).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestHandlers_LedgerFlow(t *testing.T) {
	router := newTestRouter(t)

	code, body := do(t, router, "POST", "/portfolios/alice/deposit", `{"amount": "10000", "date": "2024-01-02"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "10000", body["cash_balance"])

	code, body = do(t, router, "POST", "/portfolios/alice/positions",
		`{"symbol": "aapl", "quantity": 20, "price": 100, "date": "2024-02-01", "market": "US"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "8000", body["cash_balance"])

	code, body = do(t, router, "POST", "/portfolios/alice/positions/AAPL/sell", `{"quantity": 10, "price": 150}`)
	require.Equal(t, http.StatusOK, code, body)
	sale := body["sale"].(map[string]interface{})
	assert.Equal(t, "500", sale["realized_gain"])
	taxResult := body["tax"].(map[string]interface{})
	assert.Equal(t, "25", taxResult["tax_owed"])

	code, body = do(t, router, "POST", "/portfolios/alice/withdrawals", `{"amount": 1000, "type": "planned"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "8500", body["cash_balance"])

	code, body = do(t, router, "GET", "/portfolios/alice/withdrawals/summary?year=2025", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["count"])

	code, body = do(t, router, "GET", "/portfolios/alice/valuation", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.InDelta(t, 10000, body["total_value"], 1e-9)

	code, body = do(t, router, "GET", "/portfolios/alice/summary?risk_score=0.4", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Contains(t, body, "top_holdings")

	code, body = do(t, router, "GET", "/portfolios/alice/events", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Greater(t, body["count"], 0.0)
}

func TestHandlers_ErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	code, _ := do(t, router, "GET", "/portfolios/ghost/valuation", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, router, "POST", "/portfolios/alice/deposit", `{"amount": -5}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, "POST", "/portfolios/alice/deposit", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, "POST", "/portfolios/alice/deposit", `{"amount": 100, "date": "yesterday"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, "POST", "/portfolios/alice/deposit", `{"amount": 100}`)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, router, "POST", "/portfolios/alice/withdrawals", `{"amount": 500}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "insufficient cash")

	code, _ = do(t, router, "POST", "/portfolios/alice/positions/MSFT/sell", `{"quantity": 1, "price": 10}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, router, "GET", "/portfolios/alice/health?risk_score=2", "")
	assert.Equal(t, http.StatusBadRequest, code)

	for _, raw := range []string{"NaN", "nan", "Inf", "-Inf"} {
		code, body = do(t, router, "GET", "/portfolios/alice/health?risk_score="+raw, "")
		assert.Equal(t, http.StatusBadRequest, code, raw)
		assert.Contains(t, body["error"], "risk_score", raw)

		code, _ = do(t, router, "GET", "/portfolios/alice/events?risk_score="+raw, "")
		assert.Equal(t, http.StatusBadRequest, code, raw)
	}

	code, _ = do(t, router, "GET", "/portfolios/alice/withdrawals/summary?year=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, "GET", "/portfolios/alice/withdrawal-plan", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHandlers_ManualPriceAndSettings(t *testing.T) {
	router := newTestRouter(t)

	code, body := do(t, router, "POST", "/portfolios/alice/positions",
		`{"symbol": "SCOM", "quantity": 100, "price": 15, "market": "NSE", "record_only": true}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "0", body["cash_balance"])

	code, body = do(t, router, "POST", "/portfolios/alice/prices/scom", `{"price": 18.5}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "SCOM", body["symbol"])

	code, body = do(t, router, "GET", "/portfolios/alice/prices/scom", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "18.5", body["price"])
	assert.Equal(t, false, body["stale"])

	code, _ = do(t, router, "GET", "/portfolios/alice/prices/EQTY", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, router, "GET", "/portfolios/alice/valuation", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.InDelta(t, 1850, body["total_value"], 1e-9)

	code, body = do(t, router, "PATCH", "/portfolios/alice/settings", `{"base_currency": "kes", "lot_matching": "lifo"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "KES", body["base_currency"])
	assert.Equal(t, "lifo", body["lot_matching"])

	code, _ = do(t, router, "PATCH", "/portfolios/alice/settings", `{"base_currency": "NOPE"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandlers_TaxAndPlanning(t *testing.T) {
	router := newTestRouter(t)

	code, body := do(t, router, "POST", "/portfolios/alice/tax/dividend", `{"amount": 1000, "jurisdiction": "uk"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "43.75", body["tax_owed"])

	code, body = do(t, router, "POST", "/portfolios/alice/positions",
		`{"symbol": "AAPL", "quantity": 10, "price": 100, "date": "2025-01-01", "record_only": true}`)
	require.Equal(t, http.StatusCreated, code, body)

	code, body = do(t, router, "POST", "/portfolios/alice/tax/estimate", `{"symbol": "AAPL", "jurisdiction": "us"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "110", body["tax_owed"])
	assert.Equal(t, "short_term", body["tax_type"])

	code, body = do(t, router, "POST", "/portfolios/alice/scenario", `{"years": 5}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 5, body["years_projected"])

	code, body = do(t, router, "POST", "/planning/required-portfolio", `{"desired_annual_income": 40000}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.InDelta(t, 1000000, body["required_portfolio"], 1e-6)

	code, _ = do(t, router, "POST", "/planning/required-portfolio", `{"desired_annual_income": 0}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
