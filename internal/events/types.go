// Package events detects actionable portfolio alerts and publishes ledger changes.
package events

import (
	"encoding/json"
	"sort"
	"time"
)

// EventType represents different event types
type EventType string

// Detected alerts
const (
	LargeGain            EventType = "large_gain"
	LargeLoss            EventType = "large_loss"
	RiskDrift            EventType = "risk_drift"
	RebalancingNeeded    EventType = "rebalancing_needed"
	ConcentrationRisk    EventType = "concentration_risk"
	LowDiversification   EventType = "low_diversification"
	TaxOptimizationHold  EventType = "tax_optimization_hold"
	TaxLossHarvesting    EventType = "tax_loss_harvesting"
	YearEndTaxPlanning   EventType = "year_end_tax_planning"
	ProfitTaking         EventType = "profit_taking"
	StopLossAlert        EventType = "stop_loss_alert"
	HealthAlert          EventType = "health_alert"
	StalePrice           EventType = "stale_price"
	ConcentrationAlerted EventType = "concentration_alert"
)

// Ledger changes
const (
	DepositRecorded    EventType = "deposit_recorded"
	PositionBought     EventType = "position_bought"
	PositionSold       EventType = "position_sold"
	WithdrawalRecorded EventType = "withdrawal_recorded"
	ManualPriceUpdated EventType = "manual_price_updated"
)

// Priority orders events for display
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort position of a priority; unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Event is one detected alert or published ledger change
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Priority   Priority  `json:"priority"`
	UserID     string    `json:"user_id,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Message    string    `json:"message"`
	Data       EventData `json:"data"`
	DetectedAt time.Time `json:"detected_at"`
}

// SortByPriority orders events critical first, keeping detection order within a priority.
func SortByPriority(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Priority.Rank() < events[j].Priority.Rank()
	})
}

// UnmarshalJSON restores the typed data payload based on the event type
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	e.Data = nil
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	eventData := newEventData(aux.Type)
	if eventData == nil {
		var raw map[string]interface{}
		if err := json.Unmarshal(aux.Data, &raw); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: aux.Type, Data: raw}
		return nil
	}
	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

func newEventData(t EventType) EventData {
	switch t {
	case LargeGain, LargeLoss, ProfitTaking, StopLossAlert:
		return &PriceMovementData{Type: t}
	case RiskDrift:
		return &RiskDriftData{}
	case RebalancingNeeded:
		return &RebalanceData{}
	case ConcentrationRisk, LowDiversification:
		return &DiversificationData{Type: t}
	case TaxOptimizationHold, TaxLossHarvesting, YearEndTaxPlanning:
		return &TaxAdviceData{Type: t}
	case HealthAlert:
		return &HealthAlertData{}
	case StalePrice:
		return &StalePriceData{}
	case ConcentrationAlerted:
		return &ConcentrationAlertData{}
	case DepositRecorded, WithdrawalRecorded:
		return &CashMovementData{Type: t}
	case PositionBought, PositionSold:
		return &TradeData{Type: t}
	case ManualPriceUpdated:
		return &ManualPriceData{}
	default:
		return nil
	}
}
