package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{userID}", func(r chi.Router) {
		r.Get("/valuation", h.HandleGetValuation)
		r.Get("/health", h.HandleGetHealth)   // ?risk_score=0..1
		r.Get("/events", h.HandleGetEvents)   // ?risk_score=0..1
		r.Get("/summary", h.HandleGetSummary) // Dashboard view
		r.Get("/withdrawal-plan", h.HandleGetWithdrawalPlan)
		r.Post("/scenario", h.HandleScenario) // Projection what-if

		r.Route("/tax", func(r chi.Router) {
			r.Post("/estimate", h.HandleTaxEstimate)
			r.Post("/dividend", h.HandleDividendTax)
		})

		r.Post("/deposit", h.HandleDeposit)
		r.Post("/positions", h.HandleAddPosition)
		r.Post("/positions/{symbol}/sell", h.HandleSellPosition)
		r.Get("/prices/{symbol}", h.HandleGetManualPrice)
		r.Post("/prices/{symbol}", h.HandleUpdateManualPrice)

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", h.HandleWithdraw)
			r.Get("/summary", h.HandleGetWithdrawalSummary) // ?year=
		})

		r.Get("/settings", h.HandleGetSettings)
		r.Patch("/settings", h.HandleUpdateSettings)
	})

	r.Post("/planning/required-portfolio", h.HandleRequiredPortfolio)
}
