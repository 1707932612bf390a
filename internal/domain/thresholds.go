package domain

import "time"

// Thresholds is the single tunable rule table shared by valuation, health
// scoring and event detection. Percentages are expressed in points (60 = 60%).
type Thresholds struct {
	// Valuation
	ConcentrationLimitPct float64       `json:"concentration_limit_pct"`
	VolatilityPerBeta     float64       `json:"volatility_per_beta"`
	ManualPriceMaxAge     time.Duration `json:"manual_price_max_age"`
	RebalanceTrimPct      float64       `json:"rebalance_trim_pct"`
	RebalanceTargetPct    float64       `json:"rebalance_target_pct"`

	// Health scoring
	DiversificationMaxWeightPct float64    `json:"diversification_max_weight_pct"`
	DiversificationPenaltyPerPt float64    `json:"diversification_penalty_per_pt"`
	MinHoldings                 int        `json:"min_holdings"`
	MissingHoldingPenalty       float64    `json:"missing_holding_penalty"`
	HighBeta                    float64    `json:"high_beta"`
	PerformanceBandsPct         [4]float64 `json:"performance_bands_pct"`
	SustainabilityBandsPct      [3]float64 `json:"sustainability_bands_pct"`
	RatingExcellent             float64    `json:"rating_excellent"`
	RatingGood                  float64    `json:"rating_good"`
	RatingFair                  float64    `json:"rating_fair"`

	// Event detection
	LargeGainPct             float64 `json:"large_gain_pct"`
	LargeLossPct             float64 `json:"large_loss_pct"`
	ProfitTakingPct          float64 `json:"profit_taking_pct"`
	StopLossPct              float64 `json:"stop_loss_pct"`
	RebalanceAlertPct        float64 `json:"rebalance_alert_pct"`
	ConservativeMaxWeightPct float64 `json:"conservative_max_weight_pct"`
	ModerateMaxWeightPct     float64 `json:"moderate_max_weight_pct"`
	AggressiveMaxWeightPct   float64 `json:"aggressive_max_weight_pct"`
	ConservativeRiskBelow    float64 `json:"conservative_risk_below"`
	ModerateRiskBelow        float64 `json:"moderate_risk_below"`

	// Tax timing
	LongTermHoldingDays    int     `json:"long_term_holding_days"`
	HoldReminderDays       int     `json:"hold_reminder_days"`
	LossHarvestMateriality float64 `json:"loss_harvest_materiality"`
	YearEndWindowDays      int     `json:"year_end_window_days"`
	YearEndAlertDays       int     `json:"year_end_alert_days"`
	YearEndAlertMinLoss    float64 `json:"year_end_alert_min_loss"`
}

// DefaultThresholds returns the standard rule table
func DefaultThresholds() Thresholds {
	return Thresholds{
		ConcentrationLimitPct: 60,
		VolatilityPerBeta:     0.18,
		ManualPriceMaxAge:     24 * time.Hour,
		RebalanceTrimPct:      15,
		RebalanceTargetPct:    10,

		DiversificationMaxWeightPct: 15,
		DiversificationPenaltyPerPt: 0.5,
		MinHoldings:                 5,
		MissingHoldingPenalty:       3,
		HighBeta:                    1.3,
		PerformanceBandsPct:         [4]float64{20, 10, 5, 0},
		SustainabilityBandsPct:      [3]float64{4, 5, 6},
		RatingExcellent:             85,
		RatingGood:                  70,
		RatingFair:                  55,

		LargeGainPct:             20,
		LargeLossPct:             -15,
		ProfitTakingPct:          50,
		StopLossPct:              -25,
		RebalanceAlertPct:        30,
		ConservativeMaxWeightPct: 15,
		ModerateMaxWeightPct:     25,
		AggressiveMaxWeightPct:   35,
		ConservativeRiskBelow:    0.3,
		ModerateRiskBelow:        0.6,

		LongTermHoldingDays:    365,
		HoldReminderDays:       30,
		LossHarvestMateriality: 1000,
		YearEndWindowDays:      60,
		YearEndAlertDays:       45,
		YearEndAlertMinLoss:    500,
	}
}

// MaxWeightForRisk returns the largest acceptable single-holding weight for a risk score.
func (t Thresholds) MaxWeightForRisk(riskScore float64) float64 {
	switch {
	case riskScore < t.ConservativeRiskBelow:
		return t.ConservativeMaxWeightPct
	case riskScore < t.ModerateRiskBelow:
		return t.ModerateMaxWeightPct
	default:
		return t.AggressiveMaxWeightPct
	}
}
