package events

import (
	"encoding/json"
)

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PriceMovementData carries the gain or loss behind a price-movement alert.
// The same shape backs large_gain, large_loss, profit_taking and stop_loss_alert.
type PriceMovementData struct {
	Type           EventType `json:"-"`
	ChangePercent  float64   `json:"change_percent"`
	CurrentPrice   float64   `json:"current_price"`
	AverageCost    float64   `json:"average_cost"`
	UnrealizedGain float64   `json:"unrealized_gain"`
}

// EventType returns the event type for PriceMovementData
func (d *PriceMovementData) EventType() EventType {
	return d.Type
}

// RiskDriftData contains data for RiskDrift events
type RiskDriftData struct {
	PositionPercent      float64 `json:"position_percent"`
	MaxAcceptablePercent float64 `json:"max_acceptable_percent"`
	UserRiskScore        float64 `json:"user_risk_score"`
	RiskLabel            string  `json:"risk_label"`
}

// EventType returns the event type for RiskDriftData
func (d *RiskDriftData) EventType() EventType {
	return RiskDrift
}

// RebalanceData contains data for RebalancingNeeded events
type RebalanceData struct {
	PositionPercent float64 `json:"position_percent"`
	PositionValue   float64 `json:"position_value"`
}

// EventType returns the event type for RebalanceData
func (d *RebalanceData) EventType() EventType {
	return RebalancingNeeded
}

// DiversificationData backs concentration_risk and low_diversification
type DiversificationData struct {
	Type           EventType `json:"-"`
	NumPositions   int       `json:"num_positions"`
	Recommendation string    `json:"recommendation"`
}

// EventType returns the event type for DiversificationData
func (d *DiversificationData) EventType() EventType {
	return d.Type
}

// TaxAdviceData carries a tax-timing recommendation
type TaxAdviceData struct {
	Type             EventType `json:"-"`
	Jurisdiction     string    `json:"jurisdiction"`
	UnrealizedGain   float64   `json:"unrealized_gain"`
	HoldingDays      int       `json:"holding_days"`
	DaysRemaining    int       `json:"days_remaining,omitempty"`
	PotentialSavings float64   `json:"potential_savings,omitempty"`
}

// EventType returns the event type for TaxAdviceData
func (d *TaxAdviceData) EventType() EventType {
	return d.Type
}

// HealthAlertData contains data for HealthAlert events
type HealthAlertData struct {
	Total    float64  `json:"total"`
	Rating   string   `json:"rating"`
	Insights []string `json:"insights"`
}

// EventType returns the event type for HealthAlertData
func (d *HealthAlertData) EventType() EventType {
	return HealthAlert
}

// StalePriceData contains data for StalePrice events
type StalePriceData struct {
	Market      string  `json:"market"`
	Price       float64 `json:"price"`
	Source      string  `json:"source"`
	Unavailable bool    `json:"unavailable"`
}

// EventType returns the event type for StalePriceData
func (d *StalePriceData) EventType() EventType {
	return StalePrice
}

// ConcentrationAlertData mirrors the valuation's concentration alert
type ConcentrationAlertData struct {
	CurrentPercent      float64 `json:"current_percent"`
	TargetPercent       float64 `json:"target_percent"`
	SuggestedSellAmount float64 `json:"suggested_sell_amount"`
}

// EventType returns the event type for ConcentrationAlertData
func (d *ConcentrationAlertData) EventType() EventType {
	return ConcentrationAlerted
}

// CashMovementData backs deposit_recorded and withdrawal_recorded
type CashMovementData struct {
	Type        EventType `json:"-"`
	UserID      string    `json:"user_id"`
	Amount      string    `json:"amount"`
	CashBalance string    `json:"cash_balance"`
	Kind        string    `json:"kind,omitempty"`
}

// EventType returns the event type for CashMovementData
func (d *CashMovementData) EventType() EventType {
	return d.Type
}

// TradeData backs position_bought and position_sold
type TradeData struct {
	Type         EventType `json:"-"`
	UserID       string    `json:"user_id"`
	Quantity     string    `json:"quantity"`
	Price        string    `json:"price"`
	RealizedGain string    `json:"realized_gain,omitempty"`
	LotMatching  string    `json:"lot_matching,omitempty"`
}

// EventType returns the event type for TradeData
func (d *TradeData) EventType() EventType {
	return d.Type
}

// ManualPriceData contains data for ManualPriceUpdated events
type ManualPriceData struct {
	UserID string `json:"user_id"`
	Price  string `json:"price"`
}

// EventType returns the event type for ManualPriceData
func (d *ManualPriceData) EventType() EventType {
	return ManualPriceUpdated
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
