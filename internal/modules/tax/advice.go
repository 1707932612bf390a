package tax

import (
	"fmt"
	"math"
	"time"
)

// AdviceKind identifies a tax-timing recommendation
type AdviceKind string

const (
	AdviceHoldForLongTerm AdviceKind = "hold_for_long_term"
	AdviceLossHarvesting  AdviceKind = "loss_harvesting"
	AdviceYearEndPlanning AdviceKind = "year_end_planning"
)

// AdvicePriority mirrors event priorities so advice can be surfaced as events
type AdvicePriority string

const (
	PriorityHigh   AdvicePriority = "high"
	PriorityMedium AdvicePriority = "medium"
)

// LotView is the priced, read-only view of an open holding the advice rules need
type LotView struct {
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	AverageCost  float64   `json:"average_cost"`
	CurrentPrice float64   `json:"current_price"`
	PurchaseDate time.Time `json:"purchase_date"`
}

// UnrealizedGain is market value minus cost
func (l LotView) UnrealizedGain() float64 {
	return (l.CurrentPrice - l.AverageCost) * l.Quantity
}

// AdviceRules tunes the timing windows and materiality of each rule
type AdviceRules struct {
	HoldReminderDays       int
	LossHarvestMateriality float64
	YearEndWindowDays      int
	// YearEndMinLoss is the loss size (positive) a lot must exceed to get year-end advice.
	YearEndMinLoss float64
}

// DefaultAdviceRules returns the standalone tax-engine rules
func DefaultAdviceRules() AdviceRules {
	return AdviceRules{
		HoldReminderDays:       30,
		LossHarvestMateriality: 1000,
		YearEndWindowDays:      60,
		YearEndMinLoss:         0,
	}
}

// Advice is one timing recommendation for a lot
type Advice struct {
	Kind             AdviceKind     `json:"kind"`
	Priority         AdvicePriority `json:"priority"`
	Symbol           string         `json:"symbol"`
	Message          string         `json:"message"`
	UnrealizedGain   float64        `json:"unrealized_gain"`
	HoldingDays      int            `json:"holding_days"`
	DaysRemaining    int            `json:"days_remaining,omitempty"`
	PotentialSavings float64        `json:"potential_savings,omitempty"`
}

// OptimizationAdvice applies the calculator's rules under its default jurisdiction
func (c *Calculator) OptimizationAdvice(lots []LotView, now time.Time) []Advice {
	return c.AdviseWith(lots, now, c.DefaultJurisdiction, c.Rules)
}

// AdviseWith evaluates every lot against the hold, loss-harvest and year-end rules.
func (c *Calculator) AdviseWith(lots []LotView, now time.Time, jurisdiction string, rules AdviceRules) []Advice {
	regime := c.Regime(jurisdiction)
	hp, holdingAware := regime.(holdingPeriodAware)
	daysToYearEnd := DaysToYearEnd(now)

	var out []Advice
	for _, lot := range lots {
		gain := lot.UnrealizedGain()
		days := HoldingDays(lot.PurchaseDate, now)

		if holdingAware && gain > 0 {
			remaining := hp.longTermAfterDays() - days
			if remaining > 0 && remaining <= rules.HoldReminderDays {
				spread, _ := hp.rateSpread().Float64()
				savings := round2(gain * spread)
				out = append(out, Advice{
					Kind:             AdviceHoldForLongTerm,
					Priority:         PriorityHigh,
					Symbol:           lot.Symbol,
					Message:          fmt.Sprintf("Hold %s for %d more days to qualify for long-term capital gains, saving about %.2f", lot.Symbol, remaining, savings),
					UnrealizedGain:   round2(gain),
					HoldingDays:      days,
					DaysRemaining:    remaining,
					PotentialSavings: savings,
				})
			}
		}

		if gain < -rules.LossHarvestMateriality {
			out = append(out, Advice{
				Kind:           AdviceLossHarvesting,
				Priority:       PriorityMedium,
				Symbol:         lot.Symbol,
				Message:        fmt.Sprintf("Consider harvesting the %.2f loss on %s to offset other gains", math.Abs(gain), lot.Symbol),
				UnrealizedGain: round2(gain),
				HoldingDays:    days,
			})
		}

		if gain < 0 && -gain > rules.YearEndMinLoss && daysToYearEnd <= rules.YearEndWindowDays {
			out = append(out, Advice{
				Kind:           AdviceYearEndPlanning,
				Priority:       PriorityMedium,
				Symbol:         lot.Symbol,
				Message:        fmt.Sprintf("%d days to year end: realizing the %.2f loss on %s would count against this year's gains", daysToYearEnd, math.Abs(gain), lot.Symbol),
				UnrealizedGain: round2(gain),
				HoldingDays:    days,
				DaysRemaining:  daysToYearEnd,
			})
		}
	}
	return out
}

// DaysToYearEnd counts days from now to December 31 of the same year
func DaysToYearEnd(now time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	end := time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(today).Hours() / 24)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
