package valuation

import (
	"time"

	"github.com/aristath/nestegg/internal/domain"
)

// PriceSource tells where a holding's price came from
type PriceSource string

const (
	PriceSourceLive   PriceSource = "live"
	PriceSourceManual PriceSource = "manual"
	// PriceSourceCached marks a last-known quote served while the provider is unreachable.
	PriceSourceCached PriceSource = "cached"
	// PriceSourceCost marks a fallback to average cost when no price could be resolved.
	PriceSourceCost PriceSource = "cost"
)

// CashSymbol labels the cash row in allocation breakdowns
const CashSymbol = "CASH"

// EntryPL is the profit/loss of a single lot at the resolved price
type EntryPL struct {
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	Date         time.Time `json:"date"`
	Invested     float64   `json:"invested"`
	CurrentValue float64   `json:"current_value"`
	PL           float64   `json:"pl"`
	PLPercent    float64   `json:"pl_percent"`
	HoldingDays  int       `json:"holding_days"`
}

// Holding is a priced position
type Holding struct {
	Symbol            string            `json:"symbol"`
	AssetType         domain.AssetType  `json:"asset_type"`
	Market            string            `json:"market"`
	Quantity          float64           `json:"quantity"`
	AverageCost       float64           `json:"average_cost"`
	TotalInvested     float64           `json:"total_invested"`
	CurrentPrice      float64           `json:"current_price"`
	CurrentValue      float64           `json:"current_value"`
	PL                float64           `json:"pl"`
	PLPercent         float64           `json:"pl_percent"`
	Weight            float64           `json:"weight"`
	PriceSource       PriceSource       `json:"price_source"`
	PriceUnavailable  bool              `json:"price_unavailable"`
	PriceStale        bool              `json:"price_stale"`
	PriceAsOf         *time.Time        `json:"price_as_of,omitempty"`
	FirstPurchaseDate time.Time         `json:"first_purchase_date"`
	HoldingDays       int               `json:"holding_days"`
	Meta              domain.SymbolMeta `json:"meta"`
	Entries           []EntryPL         `json:"entries"`
}

// AllocationItem is one row of the allocation breakdown
type AllocationItem struct {
	Symbol  string  `json:"symbol"`
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"`
	Sector  string  `json:"sector"`
	Region  string  `json:"region"`
	Beta    float64 `json:"beta"`
}

// ConcentrationAlert flags a holding above the concentration limit
type ConcentrationAlert struct {
	Symbol              string  `json:"symbol"`
	CurrentPercent      float64 `json:"current_percent"`
	TargetPercent       float64 `json:"target_percent"`
	SuggestedSellAmount float64 `json:"suggested_sell_amount"`
}

// RiskMetrics are the portfolio-level risk figures. Volatility is a linear
// proxy on beta, not a covariance estimate.
type RiskMetrics struct {
	Beta          float64 `json:"beta"`
	Volatility    float64 `json:"volatility"`
	EquityPercent float64 `json:"equity_percent"`
	CashPercent   float64 `json:"cash_percent"`
}

// Valuation is the priced view of a portfolio at a point in time
type Valuation struct {
	PortfolioID       string              `json:"portfolio_id"`
	UserID            string              `json:"user_id"`
	BaseCurrency      string              `json:"base_currency"`
	AsOf              time.Time           `json:"as_of"`
	Holdings          []Holding           `json:"holdings"`
	CashBalance       float64             `json:"cash_balance"`
	TotalValue        float64             `json:"total_value"`
	TotalInvested     float64             `json:"total_invested"`
	TotalPL           float64             `json:"total_pl"`
	TotalPLPercent    float64             `json:"total_pl_percent"`
	Allocation        []AllocationItem    `json:"allocation"`
	ByAssetType       map[string]float64  `json:"by_asset_type"`
	ByMarket          map[string]float64  `json:"by_market"`
	Concentration     *ConcentrationAlert `json:"concentration,omitempty"`
	Risk              RiskMetrics         `json:"risk"`
	YTDWithdrawn      float64             `json:"ytd_withdrawn"`
	InitialValue      float64             `json:"initial_value"`
	StalePrices       []string            `json:"stale_prices"`
	UnavailablePrices []string            `json:"unavailable_prices"`
}

// Largest returns the holding with the highest weight, or nil when empty
func (v Valuation) Largest() *Holding {
	var best *Holding
	for i := range v.Holdings {
		if best == nil || v.Holdings[i].Weight > best.Weight {
			best = &v.Holdings[i]
		}
	}
	return best
}

// RebalanceAction trims an overweight holding back to the target weight
type RebalanceAction struct {
	Symbol         string  `json:"symbol"`
	CurrentPercent float64 `json:"current_percent"`
	TargetPercent  float64 `json:"target_percent"`
	TrimAmount     float64 `json:"trim_amount"`
}

// RebalancePlan lists the trims needed to bring holdings under the trim threshold
type RebalancePlan struct {
	Needed       bool              `json:"needed"`
	TrimAbovePct float64           `json:"trim_above_pct"`
	Actions      []RebalanceAction `json:"actions"`
}
