// Package scoring rates portfolio health on a 0-100 scale.
package scoring

import (
	"math"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/modules/valuation"
)

// Health ratings
const (
	RatingExcellent      = "Excellent"
	RatingGood           = "Good"
	RatingFair           = "Fair"
	RatingNeedsAttention = "Needs Attention"
)

const maxSubScore = 25.0

// HealthScore is the composite health assessment of a portfolio
type HealthScore struct {
	Diversification float64  `json:"diversification"`
	RiskAlignment   float64  `json:"risk_alignment"`
	Performance     float64  `json:"performance"`
	Sustainability  float64  `json:"sustainability"`
	Total           float64  `json:"total"`
	Rating          string   `json:"rating"`
	Insights        []string `json:"insights"`
	PortfolioRisk   float64  `json:"portfolio_risk"`
	UserRisk        float64  `json:"user_risk"`
	YTDWithdrawRate float64  `json:"ytd_withdraw_rate_percent"`
}

// HealthScorer computes health scores from a valuation
type HealthScorer struct {
	thresholds domain.Thresholds
}

// NewHealthScorer creates a scorer over the shared thresholds
func NewHealthScorer(thresholds domain.Thresholds) *HealthScorer {
	return &HealthScorer{thresholds: thresholds}
}

// Score rates v against the user's risk score (0..1)
func (s *HealthScorer) Score(v valuation.Valuation, riskScore float64) HealthScore {
	riskScore = domain.RiskProfileFromScore(riskScore).Score

	hs := HealthScore{
		Diversification: s.diversification(v),
		PortfolioRisk:   s.PortfolioRisk(v),
		UserRisk:        riskScore,
		Performance:     s.performance(v.TotalPLPercent),
	}
	hs.RiskAlignment = riskAlignment(math.Abs(hs.PortfolioRisk - riskScore))

	if v.TotalValue > 0 {
		hs.YTDWithdrawRate = v.YTDWithdrawn / v.TotalValue * 100
	}
	hs.Sustainability = s.sustainability(hs.YTDWithdrawRate)

	hs.Total = hs.Diversification + hs.RiskAlignment + hs.Performance + hs.Sustainability
	hs.Rating = s.rating(hs.Total)
	hs.Insights = insights(hs)
	return hs
}

func (s *HealthScorer) diversification(v valuation.Valuation) float64 {
	score := maxSubScore
	for _, h := range v.Holdings {
		if h.Weight > s.thresholds.DiversificationMaxWeightPct {
			score -= (h.Weight - s.thresholds.DiversificationMaxWeightPct) * s.thresholds.DiversificationPenaltyPerPt
		}
	}
	if short := s.thresholds.MinHoldings - len(v.Holdings); short > 0 {
		score -= float64(short) * s.thresholds.MissingHoldingPenalty
	}
	return math.Max(0, math.Min(maxSubScore, score))
}

// PortfolioRisk estimates risk on a 0..1 scale: high-beta holdings count 0.8,
// technology holdings 0.5 and everything else 0.3, weighted by portfolio share.
// Cash contributes nothing. An empty portfolio is treated as moderate.
func (s *HealthScorer) PortfolioRisk(v valuation.Valuation) float64 {
	if len(v.Holdings) == 0 {
		return 0.5
	}
	total := 0.0
	for _, h := range v.Holdings {
		weight := h.Weight / 100
		switch {
		case h.Meta.Beta >= s.thresholds.HighBeta:
			total += weight * 0.8
		case h.Meta.Sector == domain.SectorTechnology:
			total += weight * 0.5
		default:
			total += weight * 0.3
		}
	}
	return math.Max(0, math.Min(1, total))
}

func riskAlignment(diff float64) float64 {
	switch {
	case diff < 0.1:
		return 25
	case diff < 0.2:
		return 20
	case diff < 0.3:
		return 15
	default:
		return 10
	}
}

func (s *HealthScorer) performance(plPercent float64) float64 {
	bands := s.thresholds.PerformanceBandsPct
	switch {
	case plPercent > bands[0]:
		return 25
	case plPercent > bands[1]:
		return 20
	case plPercent > bands[2]:
		return 15
	case plPercent > bands[3]:
		return 10
	default:
		return 5
	}
}

func (s *HealthScorer) sustainability(ratePercent float64) float64 {
	bands := s.thresholds.SustainabilityBandsPct
	switch {
	case ratePercent < bands[0]:
		return 25
	case ratePercent < bands[1]:
		return 20
	case ratePercent < bands[2]:
		return 15
	default:
		return 10
	}
}

func (s *HealthScorer) rating(total float64) string {
	switch {
	case total >= s.thresholds.RatingExcellent:
		return RatingExcellent
	case total >= s.thresholds.RatingGood:
		return RatingGood
	case total >= s.thresholds.RatingFair:
		return RatingFair
	default:
		return RatingNeedsAttention
	}
}

func insights(hs HealthScore) []string {
	out := []string{}
	if hs.Diversification < 20 {
		out = append(out, "Concentration risk: consider adding positions or trimming large holdings")
	}
	if hs.RiskAlignment < 20 {
		if hs.PortfolioRisk > hs.UserRisk {
			out = append(out, "Portfolio is riskier than your stated tolerance: consider shifting toward lower-risk assets")
		} else {
			out = append(out, "Portfolio is more conservative than your tolerance allows: growth positions could be added")
		}
	}
	if hs.Performance < 15 {
		out = append(out, "Portfolio is underperforming: review holdings and consider rebalancing")
	}
	if hs.Sustainability < 20 {
		out = append(out, "Withdrawal rate is high: reduce withdrawals or let the portfolio grow")
	}
	if len(out) == 0 {
		out = append(out, "Portfolio is healthy")
	}
	return out
}
