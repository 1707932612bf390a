package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/modules/scoring"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/aristath/nestegg/internal/modules/valuation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var june = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func holding(symbol string, qty, avg, price float64, bought time.Time) valuation.Holding {
	return valuation.Holding{
		Symbol:            symbol,
		Market:            "US",
		Quantity:          qty,
		AverageCost:       avg,
		TotalInvested:     qty * avg,
		CurrentPrice:      price,
		CurrentValue:      qty * price,
		PL:                (price - avg) * qty,
		PriceSource:       valuation.PriceSourceLive,
		FirstPurchaseDate: bought,
	}
}

func newDetector(jurisdiction string) *Detector {
	return NewDetector(domain.DefaultThresholds(), tax.NewCalculator(jurisdiction), jurisdiction, zerolog.Nop())
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestDetect_PriceRulesAndOrdering(t *testing.T) {
	v := valuation.Valuation{
		UserID: "u1",
		Holdings: []valuation.Holding{
			holding("AAPL", 10, 100, 160, june.AddDate(-2, 0, 0)),
			holding("TSLA", 10, 100, 70, june.AddDate(-2, 0, 0)),
		},
	}
	health := scoring.HealthScore{Total: 72, Rating: scoring.RatingGood}

	got := newDetector(tax.Kenya).Detect(v, health, domain.RiskProfileFromScore(0.5), june)

	assert.Equal(t, []EventType{
		LargeGain, RiskDrift, StopLossAlert,
		LargeLoss, RebalancingNeeded, RebalancingNeeded, LowDiversification, ProfitTaking,
	}, types(got))

	for _, e := range got {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, june, e.DetectedAt)
		require.NotNil(t, e.Data)
		assert.Equal(t, e.Type, e.Data.EventType())
	}

	drift := got[1].Data.(*RiskDriftData)
	assert.Equal(t, "AAPL", got[1].Symbol)
	assert.InDelta(t, 1600.0/2300*100, drift.PositionPercent, 1e-9)
	assert.Equal(t, 25.0, drift.MaxAcceptablePercent)
	assert.Equal(t, "moderate", drift.RiskLabel)
}

func TestDetect_RiskDriftFollowsProfile(t *testing.T) {
	v := valuation.Valuation{Holdings: []valuation.Holding{
		holding("A", 1, 10, 10, june), holding("B", 1, 10, 10, june), holding("C", 1, 10, 10, june),
		holding("D", 1, 10, 10, june), holding("E", 1, 10, 20, june),
	}}
	// E is a third of invested value
	d := newDetector(tax.Kenya)

	conservative := d.Detect(v, scoring.HealthScore{}, domain.RiskProfileFromScore(0.1), june)
	assert.Contains(t, types(conservative), RiskDrift)

	aggressive := d.Detect(v, scoring.HealthScore{}, domain.RiskProfileFromScore(0.9), june)
	assert.NotContains(t, types(aggressive), RiskDrift)
}

func TestDetect_PortfolioLevelAlerts(t *testing.T) {
	h := holding("SCOM", 100, 20, 20, june)
	h.Market = "NSE"
	h.PriceSource = valuation.PriceSourceManual
	h.PriceStale = true

	v := valuation.Valuation{
		Holdings: []valuation.Holding{h},
		Concentration: &valuation.ConcentrationAlert{
			Symbol: "SCOM", CurrentPercent: 95, TargetPercent: 60, SuggestedSellAmount: 700,
		},
	}
	health := scoring.HealthScore{Total: 30, Rating: scoring.RatingNeedsAttention, Insights: []string{"x"}}

	got := newDetector(tax.Kenya).Detect(v, health, domain.RiskProfileFromScore(0.9), june)
	require.NotEmpty(t, got)

	assert.Equal(t, HealthAlert, got[0].Type)
	assert.Equal(t, ConcentrationAlerted, got[1].Type)
	assert.Equal(t, PriorityCritical, got[1].Priority)
	assert.Contains(t, types(got), ConcentrationRisk)
	last := got[len(got)-1]
	assert.Equal(t, StalePrice, last.Type)
	assert.Equal(t, PriorityLow, last.Priority)
	assert.Equal(t, "NSE", last.Data.(*StalePriceData).Market)
}

func TestDetect_StaleCachedQuote(t *testing.T) {
	h := holding("AAPL", 10, 150, 200, june)
	h.PriceSource = valuation.PriceSourceCached
	h.PriceStale = true

	got := newDetector(tax.Kenya).Detect(valuation.Valuation{Holdings: []valuation.Holding{h}},
		scoring.HealthScore{Total: 80}, domain.RiskProfileFromScore(0.5), june)

	var stale *Event
	for i := range got {
		if got[i].Type == StalePrice {
			stale = &got[i]
		}
	}
	require.NotNil(t, stale)
	assert.Contains(t, stale.Message, "last known price")
	data := stale.Data.(*StalePriceData)
	assert.Equal(t, "cached", data.Source)
	assert.False(t, data.Unavailable)
}

func TestDetect_TaxAdviceUsesSharedThresholds(t *testing.T) {
	now := time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC)
	v := valuation.Valuation{Holdings: []valuation.Holding{
		holding("NVDA", 10, 100, 110, now.AddDate(0, 0, -340)),
		holding("AMD", 100, 50, 38, now.AddDate(-1, 0, 0)),
		holding("MSFT", 10, 100, 100, now.AddDate(-3, 0, 0)),
		holding("GOOGL", 10, 100, 101, now.AddDate(-3, 0, 0)),
		holding("AMZN", 10, 100, 99, now.AddDate(-3, 0, 0)),
	}}

	got := newDetector(tax.US).Detect(v, scoring.HealthScore{}, domain.RiskProfileFromScore(0.9), now)

	byType := map[EventType]Event{}
	for _, e := range got {
		byType[e.Type] = e
	}
	hold, ok := byType[TaxOptimizationHold]
	require.True(t, ok)
	assert.Equal(t, "NVDA", hold.Symbol)
	assert.Equal(t, 25, hold.Data.(*TaxAdviceData).DaysRemaining)
	assert.Equal(t, tax.US, hold.Data.(*TaxAdviceData).Jurisdiction)

	harvest, ok := byType[TaxLossHarvesting]
	require.True(t, ok)
	assert.Equal(t, "AMD", harvest.Symbol)
	assert.Equal(t, PriorityMedium, harvest.Priority)

	yearEnd, ok := byType[YearEndTaxPlanning]
	require.True(t, ok)
	assert.Equal(t, "AMD", yearEnd.Symbol, "AMZN's 10 loss is below the year-end floor")
	assert.Equal(t, PriorityMedium, yearEnd.Priority)
}

func TestDetect_CustomThresholds(t *testing.T) {
	th := domain.DefaultThresholds()
	th.LargeGainPct = 5
	d := NewDetector(th, nil, "", zerolog.Nop())

	v := valuation.Valuation{Holdings: []valuation.Holding{holding("X", 1, 100, 110, june)}}
	got := d.Detect(v, scoring.HealthScore{}, domain.RiskProfileFromScore(0.9), june)
	assert.Contains(t, types(got), LargeGain)

	got = newDetector(tax.Kenya).Detect(v, scoring.HealthScore{}, domain.RiskProfileFromScore(0.9), june)
	assert.NotContains(t, types(got), LargeGain)
}

func TestDetect_EmptyPortfolio(t *testing.T) {
	got := newDetector(tax.Kenya).Detect(valuation.Valuation{}, scoring.HealthScore{Rating: scoring.RatingNeedsAttention}, domain.RiskProfileFromScore(0.5), june)
	assert.Empty(t, got)
}

func TestEvent_JSONKeepsTypedData(t *testing.T) {
	in := Event{
		ID:       "id-1",
		Type:     TaxLossHarvesting,
		Priority: PriorityMedium,
		Symbol:   "AMD",
		Data:     &TaxAdviceData{Type: TaxLossHarvesting, Jurisdiction: "us", UnrealizedGain: -1200},
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Event
	require.NoError(t, json.Unmarshal(raw, &out))
	data, ok := out.Data.(*TaxAdviceData)
	require.True(t, ok)
	assert.Equal(t, TaxLossHarvesting, data.EventType())
	assert.Equal(t, -1200.0, data.UnrealizedGain)

	var generic Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"something_new","data":{"k":"v"}}`), &generic))
	assert.Equal(t, "v", generic.Data.(*GenericEventData).Data["k"])
}

func TestSortByPriority_Stable(t *testing.T) {
	evs := []Event{
		{ID: "1", Priority: PriorityLow},
		{ID: "2", Priority: PriorityHigh},
		{ID: "3", Priority: PriorityCritical},
		{ID: "4", Priority: PriorityHigh},
	}
	SortByPriority(evs)
	ids := []string{evs[0].ID, evs[1].ID, evs[2].ID, evs[3].ID}
	assert.Equal(t, []string{"3", "2", "4", "1"}, ids)
}
