package events

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/modules/scoring"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/aristath/nestegg/internal/modules/valuation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Detector turns a valuation and health score into prioritized alerts
type Detector struct {
	thresholds   domain.Thresholds
	tax          *tax.Calculator
	jurisdiction string
	log          zerolog.Logger
}

// NewDetector creates a detector. Tax advice is evaluated under jurisdiction.
func NewDetector(thresholds domain.Thresholds, calc *tax.Calculator, jurisdiction string, log zerolog.Logger) *Detector {
	return &Detector{
		thresholds:   thresholds,
		tax:          calc,
		jurisdiction: jurisdiction,
		log:          log.With().Str("service", "event_detector").Logger(),
	}
}

// Detect runs every rule and returns the events sorted by priority
func (d *Detector) Detect(v valuation.Valuation, health scoring.HealthScore, profile domain.RiskProfile, now time.Time) []Event {
	var out []Event
	emit := func(t EventType, p Priority, symbol, msg string, data EventData) {
		out = append(out, Event{
			ID:         uuid.New().String(),
			Type:       t,
			Priority:   p,
			Symbol:     symbol,
			Message:    msg,
			Data:       data,
			DetectedAt: now,
		})
	}

	d.priceMovements(v, emit)
	d.riskDrift(v, profile, emit)
	d.rebalancing(v, emit)
	d.diversification(v, emit)
	d.taxOpportunities(v, now, emit)
	d.profitAndStopLoss(v, emit)
	d.portfolioAlerts(v, health, emit)

	SortByPriority(out)
	d.log.Debug().Int("count", len(out)).Str("user_id", v.UserID).Msg("Detected portfolio events")
	return out
}

type emitFunc func(t EventType, p Priority, symbol, msg string, data EventData)

// priced holdings with a usable cost basis
func movable(h valuation.Holding) bool {
	return h.AverageCost > 0 && !h.PriceUnavailable
}

func changePercent(h valuation.Holding) float64 {
	return (h.CurrentPrice - h.AverageCost) / h.AverageCost * 100
}

func movementData(t EventType, h valuation.Holding) *PriceMovementData {
	return &PriceMovementData{
		Type:           t,
		ChangePercent:  changePercent(h),
		CurrentPrice:   h.CurrentPrice,
		AverageCost:    h.AverageCost,
		UnrealizedGain: (h.CurrentPrice - h.AverageCost) * h.Quantity,
	}
}

func (d *Detector) priceMovements(v valuation.Valuation, emit emitFunc) {
	for _, h := range v.Holdings {
		if !movable(h) {
			continue
		}
		change := changePercent(h)
		switch {
		case change > d.thresholds.LargeGainPct:
			emit(LargeGain, PriorityHigh, h.Symbol,
				fmt.Sprintf("%s is up %.1f%%. Consider taking some profits.", h.Symbol, change),
				movementData(LargeGain, h))
		case change < d.thresholds.LargeLossPct:
			emit(LargeLoss, PriorityMedium, h.Symbol,
				fmt.Sprintf("%s is down %.1f%%. Review your thesis or consider tax-loss harvesting.", h.Symbol, math.Abs(change)),
				movementData(LargeLoss, h))
		}
	}
}

// investedWeights returns each holding's share of invested (non-cash) value
func investedWeights(v valuation.Valuation) []float64 {
	var total float64
	for _, h := range v.Holdings {
		total += h.CurrentValue
	}
	if total <= 0 {
		return nil
	}
	w := make([]float64, len(v.Holdings))
	for i, h := range v.Holdings {
		w[i] = h.CurrentValue / total * 100
	}
	return w
}

func (d *Detector) riskDrift(v valuation.Valuation, profile domain.RiskProfile, emit emitFunc) {
	weights := investedWeights(v)
	if len(weights) == 0 {
		return
	}
	largest := 0
	for i := range weights {
		if weights[i] > weights[largest] {
			largest = i
		}
	}
	limit := d.thresholds.MaxWeightForRisk(profile.Score)
	if weights[largest] <= limit {
		return
	}
	sym := v.Holdings[largest].Symbol
	emit(RiskDrift, PriorityHigh, sym,
		fmt.Sprintf("%s is %.1f%% of your portfolio (target: under %.0f%%). Your portfolio has drifted from your risk profile.", sym, weights[largest], limit),
		&RiskDriftData{
			PositionPercent:      weights[largest],
			MaxAcceptablePercent: limit,
			UserRiskScore:        profile.Score,
			RiskLabel:            profile.Label,
		})
}

func (d *Detector) rebalancing(v valuation.Valuation, emit emitFunc) {
	weights := investedWeights(v)
	for i, w := range weights {
		if w <= d.thresholds.RebalanceAlertPct {
			continue
		}
		h := v.Holdings[i]
		emit(RebalancingNeeded, PriorityMedium, h.Symbol,
			fmt.Sprintf("%s has grown to %.1f%% of your portfolio. Consider rebalancing to reduce concentration risk.", h.Symbol, w),
			&RebalanceData{PositionPercent: w, PositionValue: h.CurrentValue})
	}
}

func (d *Detector) diversification(v valuation.Valuation, emit emitFunc) {
	n := len(v.Holdings)
	switch {
	case n == 1:
		emit(ConcentrationRisk, PriorityHigh, "",
			"You only have 1 position. Consider adding 4-5 more to reduce concentration risk.",
			&DiversificationData{Type: ConcentrationRisk, NumPositions: n, Recommendation: "Add at least 4 more diversified positions"})
	case n > 1 && n < d.thresholds.MinHoldings:
		emit(LowDiversification, PriorityMedium, "",
			fmt.Sprintf("You have %d positions. Adding a few more would improve diversification.", n),
			&DiversificationData{Type: LowDiversification, NumPositions: n, Recommendation: "Target 5-10 positions for good diversification"})
	}
}

var adviceEventTypes = map[tax.AdviceKind]EventType{
	tax.AdviceHoldForLongTerm: TaxOptimizationHold,
	tax.AdviceLossHarvesting:  TaxLossHarvesting,
	tax.AdviceYearEndPlanning: YearEndTaxPlanning,
}

func (d *Detector) taxOpportunities(v valuation.Valuation, now time.Time, emit emitFunc) {
	if d.tax == nil {
		return
	}
	lots := make([]tax.LotView, 0, len(v.Holdings))
	for _, h := range v.Holdings {
		if !movable(h) {
			continue
		}
		lots = append(lots, tax.LotView{
			Symbol:       h.Symbol,
			Quantity:     h.Quantity,
			AverageCost:  h.AverageCost,
			CurrentPrice: h.CurrentPrice,
			PurchaseDate: h.FirstPurchaseDate,
		})
	}

	rules := tax.AdviceRules{
		HoldReminderDays:       d.thresholds.HoldReminderDays,
		LossHarvestMateriality: d.thresholds.LossHarvestMateriality,
		YearEndWindowDays:      d.thresholds.YearEndAlertDays,
		YearEndMinLoss:         d.thresholds.YearEndAlertMinLoss,
	}
	jurisdiction := d.tax.Regime(d.jurisdiction).Name()
	for _, a := range d.tax.AdviseWith(lots, now, jurisdiction, rules) {
		t := adviceEventTypes[a.Kind]
		emit(t, Priority(a.Priority), a.Symbol, a.Message, &TaxAdviceData{
			Type:             t,
			Jurisdiction:     jurisdiction,
			UnrealizedGain:   a.UnrealizedGain,
			HoldingDays:      a.HoldingDays,
			DaysRemaining:    a.DaysRemaining,
			PotentialSavings: a.PotentialSavings,
		})
	}
}

func (d *Detector) profitAndStopLoss(v valuation.Valuation, emit emitFunc) {
	for _, h := range v.Holdings {
		if !movable(h) {
			continue
		}
		change := changePercent(h)
		if change > d.thresholds.ProfitTakingPct {
			emit(ProfitTaking, PriorityMedium, h.Symbol,
				fmt.Sprintf("%s is up %.1f%%. Consider taking partial profits (sell 25-50%%) to lock in gains.", h.Symbol, change),
				movementData(ProfitTaking, h))
		}
		if change < d.thresholds.StopLossPct {
			emit(StopLossAlert, PriorityHigh, h.Symbol,
				fmt.Sprintf("%s is down %.1f%%. Review your investment thesis: cut losses or average down?", h.Symbol, math.Abs(change)),
				movementData(StopLossAlert, h))
		}
	}
}

func (d *Detector) portfolioAlerts(v valuation.Valuation, health scoring.HealthScore, emit emitFunc) {
	if len(v.Holdings) > 0 && health.Rating == scoring.RatingNeedsAttention {
		emit(HealthAlert, PriorityCritical, "",
			fmt.Sprintf("Portfolio health is %.0f/100 and needs attention.", health.Total),
			&HealthAlertData{Total: health.Total, Rating: health.Rating, Insights: health.Insights})
	}

	if c := v.Concentration; c != nil {
		emit(ConcentrationAlerted, PriorityCritical, c.Symbol,
			fmt.Sprintf("%s is %.1f%% of total value, above the %.0f%% limit. Selling about %.2f would bring it back.", c.Symbol, c.CurrentPercent, c.TargetPercent, c.SuggestedSellAmount),
			&ConcentrationAlertData{
				CurrentPercent:      c.CurrentPercent,
				TargetPercent:       c.TargetPercent,
				SuggestedSellAmount: c.SuggestedSellAmount,
			})
	}

	for _, h := range v.Holdings {
		if !h.PriceStale && !h.PriceUnavailable {
			continue
		}
		var msg string
		switch {
		case h.PriceUnavailable:
			msg = fmt.Sprintf("No price is available for %s; it is valued at cost.", h.Symbol)
		case h.PriceSource == valuation.PriceSourceCached:
			msg = fmt.Sprintf("Live quotes for %s are unavailable; it is valued at the last known price.", h.Symbol)
		default:
			msg = fmt.Sprintf("The manual price for %s is out of date. Update it to keep valuations accurate.", h.Symbol)
		}
		emit(StalePrice, PriorityLow, h.Symbol, msg, &StalePriceData{
			Market:      h.Market,
			Price:       h.CurrentPrice,
			Source:      string(h.PriceSource),
			Unavailable: h.PriceUnavailable,
		})
	}
}
