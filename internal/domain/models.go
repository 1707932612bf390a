// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetType represents the class of instrument held in a position
type AssetType string

const (
	AssetTypeStock  AssetType = "stock"
	AssetTypeETF    AssetType = "etf"
	AssetTypeCrypto AssetType = "crypto"
	AssetTypeBond   AssetType = "bond"
	AssetTypeFund   AssetType = "fund"
	AssetTypeOther  AssetType = "other"
)

// ParseAssetType normalizes a free-form asset type, falling back to AssetTypeOther.
func ParseAssetType(s string) AssetType {
	switch AssetType(s) {
	case AssetTypeStock, AssetTypeETF, AssetTypeCrypto, AssetTypeBond, AssetTypeFund:
		return AssetType(s)
	case "":
		return AssetTypeStock
	default:
		return AssetTypeOther
	}
}

// WithdrawalType classifies a cash withdrawal
type WithdrawalType string

const (
	WithdrawalRegular   WithdrawalType = "regular"
	WithdrawalEmergency WithdrawalType = "emergency"
	WithdrawalDividend  WithdrawalType = "dividend"
	WithdrawalRebalance WithdrawalType = "rebalance"
	WithdrawalPlanned   WithdrawalType = "planned"
)

// ParseWithdrawalType returns the typed withdrawal kind, defaulting to regular.
func ParseWithdrawalType(s string) WithdrawalType {
	switch WithdrawalType(s) {
	case WithdrawalEmergency, WithdrawalDividend, WithdrawalRebalance, WithdrawalPlanned:
		return WithdrawalType(s)
	default:
		return WithdrawalRegular
	}
}

// LotMatching selects how a sell consumes acquisition lots
type LotMatching string

const (
	LotMatchingAverageCost LotMatching = "average_cost"
	LotMatchingFIFO        LotMatching = "fifo"
	LotMatchingLIFO        LotMatching = "lifo"
)

// Entry is one acquisition lot. Entries are values; sells replace them, never edit them.
type Entry struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Date     time.Time       `json:"date"`
	Notes    string          `json:"notes,omitempty"`
}

// Cost returns quantity times price for the lot
func (e Entry) Cost() decimal.Decimal {
	return e.Quantity.Mul(e.Price)
}

// Position groups the lots held for a symbol
type Position struct {
	Symbol    string    `json:"symbol"`
	AssetType AssetType `json:"asset_type"`
	Market    string    `json:"market"`
	Entries   []Entry   `json:"entries"`
}

// TotalQuantity is the sum of lot quantities
func (p Position) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.Entries {
		total = total.Add(e.Quantity)
	}
	return total
}

// TotalInvested is the sum of lot costs
func (p Position) TotalInvested() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.Entries {
		total = total.Add(e.Cost())
	}
	return total
}

// AverageCost returns TotalInvested / TotalQuantity, or zero for an empty position.
func (p Position) AverageCost() decimal.Decimal {
	qty := p.TotalQuantity()
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return p.TotalInvested().Div(qty)
}

// FirstPurchaseDate returns the earliest lot date
func (p Position) FirstPurchaseDate() time.Time {
	var first time.Time
	for i, e := range p.Entries {
		if i == 0 || e.Date.Before(first) {
			first = e.Date
		}
	}
	return first
}

// Withdrawal is an append-only record of cash taken out of the portfolio
type Withdrawal struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Type   WithdrawalType  `json:"type"`
	Notes  string          `json:"notes,omitempty"`
}

// ManualPrice is a user-supplied price for instruments without a live quote
type ManualPrice struct {
	Price       decimal.Decimal `json:"price"`
	LastUpdated time.Time       `json:"last_updated"`
}

// IsStale reports whether the price is older than maxAge at now
func (m ManualPrice) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(m.LastUpdated) > maxAge
}

// Settings holds per-portfolio preferences
type Settings struct {
	BaseCurrency       string          `json:"base_currency"`
	WithdrawalRate     float64         `json:"withdrawal_rate"`
	RebalanceThreshold float64         `json:"rebalance_threshold"`
	LotMatching        LotMatching     `json:"lot_matching"`
	InitialValue       decimal.Decimal `json:"initial_value"`
}

// DefaultSettings returns the settings a new portfolio starts with
func DefaultSettings() Settings {
	return Settings{
		BaseCurrency:       "USD",
		WithdrawalRate:     0.04,
		RebalanceThreshold: 0.05,
		LotMatching:        LotMatchingAverageCost,
	}
}

// Portfolio is a user's ledger: cash, open positions, withdrawal history and manual prices.
type Portfolio struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	CashBalance  decimal.Decimal        `json:"cash_balance"`
	Positions    []Position             `json:"positions"`
	Withdrawals  []Withdrawal           `json:"withdrawals"`
	ManualPrices map[string]ManualPrice `json:"manual_prices"`
	Settings     Settings               `json:"settings"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewPortfolio creates an empty portfolio for a user
func NewPortfolio(userID string, now time.Time) *Portfolio {
	return &Portfolio{
		ID:           uuid.New().String(),
		UserID:       userID,
		CashBalance:  decimal.Zero,
		Positions:    []Position{},
		Withdrawals:  []Withdrawal{},
		ManualPrices: map[string]ManualPrice{},
		Settings:     DefaultSettings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// FindPosition returns the index of the position for symbol, or -1
func (p *Portfolio) FindPosition(symbol string) int {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// Symbols returns the held symbols in sorted order
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Positions))
	for _, pos := range p.Positions {
		out = append(out, pos.Symbol)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so mutations can be staged and committed atomically.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Positions = make([]Position, len(p.Positions))
	for i, pos := range p.Positions {
		c.Positions[i] = pos
		c.Positions[i].Entries = make([]Entry, len(pos.Entries))
		copy(c.Positions[i].Entries, pos.Entries)
	}
	c.Withdrawals = make([]Withdrawal, len(p.Withdrawals))
	copy(c.Withdrawals, p.Withdrawals)
	c.ManualPrices = make(map[string]ManualPrice, len(p.ManualPrices))
	for k, v := range p.ManualPrices {
		c.ManualPrices[k] = v
	}
	return &c
}
