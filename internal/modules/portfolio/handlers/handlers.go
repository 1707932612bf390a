// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/modules/ledger"
	"github.com/aristath/nestegg/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

func userID(r *http.Request) string {
	return chi.URLParam(r, "userID")
}

// HandleGetValuation returns the priced portfolio
func (h *Handler) HandleGetValuation(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.ValuePortfolio(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

// HandleGetHealth returns the health score for ?risk_score= (default 0.5)
func (h *Handler) HandleGetHealth(w http.ResponseWriter, r *http.Request) {
	risk, err := riskScore(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hs, err := h.service.ScoreHealth(r.Context(), userID(r), risk)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hs)
}

// HandleGetWithdrawalPlan returns the combined withdrawal plan
func (h *Handler) HandleGetWithdrawalPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.PlanWithdrawal(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// HandleScenario projects the portfolio under the posted assumptions
func (h *Handler) HandleScenario(w http.ResponseWriter, r *http.Request) {
	var req portfolio.ScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	proj, err := h.service.Scenario(r.Context(), userID(r), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, proj)
}

// HandleGetEvents returns detected alerts sorted by priority
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	risk, err := riskScore(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	detected, err := h.service.DetectEvents(r.Context(), userID(r), risk)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": detected,
		"count":  len(detected),
	})
}

// HandleGetSummary returns the dashboard view
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	risk, err := riskScore(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.service.Summary(r.Context(), userID(r), risk)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type taxEstimateRequest struct {
	Symbol         string           `json:"symbol"`
	SalePrice      *decimal.Decimal `json:"sale_price,omitempty"`
	SaleDate       string           `json:"sale_date,omitempty"`
	Jurisdiction   string           `json:"jurisdiction,omitempty"`
	TaxpayerStatus string           `json:"taxpayer_status,omitempty"`
}

// HandleTaxEstimate estimates the tax on selling a whole position
func (h *Handler) HandleTaxEstimate(w http.ResponseWriter, r *http.Request) {
	var req taxEstimateRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("sale_date", req.SaleDate)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	res, err := h.service.EstimateTax(r.Context(), userID(r), portfolio.TaxEstimateRequest{
		Symbol:         req.Symbol,
		SalePrice:      req.SalePrice,
		SaleDate:       date,
		Jurisdiction:   req.Jurisdiction,
		TaxpayerStatus: req.TaxpayerStatus,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type dividendRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Jurisdiction   string          `json:"jurisdiction,omitempty"`
	TaxpayerStatus string          `json:"taxpayer_status,omitempty"`
}

// HandleDividendTax assesses a dividend payment
func (h *Handler) HandleDividendTax(w http.ResponseWriter, r *http.Request) {
	var req dividendRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.DividendTax(req.Amount, req.Jurisdiction, req.TaxpayerStatus)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date,omitempty"`
}

// HandleDeposit adds cash, creating the portfolio on first use
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	p, err := h.service.Deposit(r.Context(), userID(r), req.Amount, date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"cash_balance": p.CashBalance,
	})
}

type positionRequest struct {
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Date      string          `json:"date,omitempty"`
	AssetType string          `json:"asset_type,omitempty"`
	Market    string          `json:"market,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	// RecordOnly adds the lot without paying for it from cash.
	RecordOnly bool `json:"record_only,omitempty"`
}

// HandleAddPosition buys a lot, or records one with record_only
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	in := ledger.EntryInput{
		Symbol:    req.Symbol,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Date:      date,
		AssetType: domain.AssetType(strings.ToLower(req.AssetType)),
		Market:    req.Market,
		Notes:     req.Notes,
	}

	var p *domain.Portfolio
	if req.RecordOnly {
		p, err = h.service.AddEntry(r.Context(), userID(r), in)
	} else {
		p, err = h.service.Buy(r.Context(), userID(r), in)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	symbol, _ := ledger.NormalizeSymbol(req.Symbol)
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"position":     p.Positions[p.FindPosition(symbol)],
		"cash_balance": p.CashBalance,
	})
}

type sellRequest struct {
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Date           string          `json:"date,omitempty"`
	Jurisdiction   string          `json:"jurisdiction,omitempty"`
	TaxpayerStatus string          `json:"taxpayer_status,omitempty"`
}

// HandleSellPosition sells shares of {symbol}
func (h *Handler) HandleSellPosition(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out, err := h.service.Sell(r.Context(), userID(r), portfolio.SellRequest{
		Symbol:         chi.URLParam(r, "symbol"),
		Quantity:       req.Quantity,
		Price:          req.Price,
		Date:           date,
		Jurisdiction:   req.Jurisdiction,
		TaxpayerStatus: req.TaxpayerStatus,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date,omitempty"`
	Type   string          `json:"type,omitempty"`
	Notes  string          `json:"notes,omitempty"`
}

// HandleWithdraw records a cash withdrawal
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out, err := h.service.Withdraw(r.Context(), userID(r), portfolio.WithdrawRequest{
		Amount: req.Amount,
		Date:   date,
		Type:   domain.ParseWithdrawalType(strings.ToLower(req.Type)),
		Notes:  req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

// HandleGetWithdrawalSummary aggregates withdrawals for ?year= (default current year)
func (h *Handler) HandleGetWithdrawalSummary(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 9999 {
			h.writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = parsed
	}
	summary, err := h.service.WithdrawalSummary(r.Context(), userID(r), year)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type manualPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// HandleUpdateManualPrice sets the manual price for {symbol}
func (h *Handler) HandleUpdateManualPrice(w http.ResponseWriter, r *http.Request) {
	var req manualPriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	symbol := chi.URLParam(r, "symbol")
	p, err := h.service.UpdateManualPrice(r.Context(), userID(r), symbol, req.Price)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	normalized, _ := ledger.NormalizeSymbol(symbol)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"symbol":  normalized,
		"price":   p.ManualPrices[normalized],
	})
}

// HandleGetManualPrice returns the manual price for {symbol} with its freshness
func (h *Handler) HandleGetManualPrice(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ManualPrice(r.Context(), userID(r), chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// HandleGetSettings returns the portfolio settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Portfolio(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p.Settings)
}

// HandleUpdateSettings applies a partial settings change
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req ledger.SettingsUpdate
	if !h.decode(w, r, &req) {
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), userID(r), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

type requiredPortfolioRequest struct {
	DesiredAnnualIncome float64 `json:"desired_annual_income"`
	WithdrawalRate      float64 `json:"withdrawal_rate,omitempty"`
}

// HandleRequiredPortfolio sizes a portfolio for a desired income
func (h *Handler) HandleRequiredPortfolio(w http.ResponseWriter, r *http.Request) {
	var req requiredPortfolioRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.RequiredPortfolio(req.DesiredAnnualIncome, req.WithdrawalRate)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// Helper methods

func riskScore(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("risk_score")
	if raw == "" {
		return domain.DefaultRiskScore, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("risk_score must be a number between 0 and 1")
	}
	return v, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates; empty means now.
func parseDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "expected YYYY-MM-DD or RFC 3339", err)
	}
	return t, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientCash), errors.Is(err, domain.ErrInsufficientQuantity):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrPortfolioNotFound), errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrPriceUnavailable):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("Request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
