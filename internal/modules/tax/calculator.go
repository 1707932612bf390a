// Package tax estimates capital gains and dividend tax across jurisdictions
// and produces timing advice for open lots.
package tax

import (
	"fmt"
	"strings"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/shopspring/decimal"
)

// CapitalGainsInput describes one sale to be assessed
type CapitalGainsInput struct {
	PurchasePrice  decimal.Decimal
	SalePrice      decimal.Decimal
	Quantity       decimal.Decimal
	PurchaseDate   time.Time
	SaleDate       time.Time
	Jurisdiction   string
	TaxpayerStatus TaxpayerStatus
}

// TaxResult is the assessment of a capital gain or loss
type TaxResult struct {
	Jurisdiction   string          `json:"jurisdiction"`
	Currency       string          `json:"currency"`
	Proceeds       decimal.Decimal `json:"proceeds"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	Gain           decimal.Decimal `json:"gain"`
	TaxableGain    decimal.Decimal `json:"taxable_gain"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxOwed        decimal.Decimal `json:"tax_owed"`
	NetProceeds    decimal.Decimal `json:"net_proceeds"`
	NetGain        decimal.Decimal `json:"net_gain"`
	TaxLoss        decimal.Decimal `json:"tax_loss"`
	AllowanceUsed  decimal.Decimal `json:"allowance_used"`
	HoldingDays    int             `json:"holding_days"`
	TaxType        string          `json:"tax_type"`
	Advisory       string          `json:"advisory,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	TaxpayerStatus TaxpayerStatus  `json:"taxpayer_status"`
}

// DividendResult is the assessment of a dividend payment
type DividendResult struct {
	Jurisdiction  string          `json:"jurisdiction"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxOwed       decimal.Decimal `json:"tax_owed"`
	NetDividend   decimal.Decimal `json:"net_dividend"`
	Notes         string          `json:"notes,omitempty"`
}

// Calculator applies jurisdiction rate tables. The zero value is not usable; use NewCalculator.
type Calculator struct {
	DefaultJurisdiction string
	Rates               map[string]Regime
	Rules               AdviceRules
}

// NewCalculator returns a calculator over the built-in regimes
func NewCalculator(defaultJurisdiction string) *Calculator {
	j := strings.ToLower(strings.TrimSpace(defaultJurisdiction))
	if j == "" {
		j = Kenya
	}
	return &Calculator{
		DefaultJurisdiction: j,
		Rates:               DefaultRegimes(),
		Rules:               DefaultAdviceRules(),
	}
}

// Regime resolves a jurisdiction name, falling back to the default and then to international.
func (c *Calculator) Regime(jurisdiction string) Regime {
	j := strings.ToLower(strings.TrimSpace(jurisdiction))
	if j == "" {
		j = c.DefaultJurisdiction
	}
	if r, ok := c.Rates[j]; ok {
		return r
	}
	if r, ok := c.Rates[International]; ok {
		return r
	}
	return DefaultRegimes()[International]
}

// CapitalGains assesses the tax due on a sale
func (c *Calculator) CapitalGains(in CapitalGainsInput) (TaxResult, error) {
	if !in.Quantity.IsPositive() {
		return TaxResult{}, domain.NewValidationError("quantity", "must be positive", domain.ErrInvalidQuantity)
	}
	if !in.PurchasePrice.IsPositive() {
		return TaxResult{}, domain.NewValidationError("purchase_price", "must be positive", domain.ErrInvalidPrice)
	}
	if in.SalePrice.IsNegative() {
		return TaxResult{}, domain.NewValidationError("sale_price", "must not be negative", domain.ErrInvalidPrice)
	}
	if !in.PurchaseDate.IsZero() && !in.SaleDate.IsZero() && in.SaleDate.Before(in.PurchaseDate) {
		return TaxResult{}, domain.NewValidationError("sale_date", "must not precede purchase date", nil)
	}

	regime := c.Regime(in.Jurisdiction)
	status := in.TaxpayerStatus
	if status == "" {
		status = Resident
	}

	cost := in.PurchasePrice.Mul(in.Quantity)
	proceeds := in.SalePrice.Mul(in.Quantity)
	gain := proceeds.Sub(cost)
	days := HoldingDays(in.PurchaseDate, in.SaleDate)

	res := TaxResult{
		Jurisdiction:   regime.Name(),
		Currency:       regime.Currency(),
		Proceeds:       proceeds.Round(2),
		CostBasis:      cost.Round(2),
		Gain:           gain.Round(2),
		HoldingDays:    days,
		TaxpayerStatus: status,
	}

	if !gain.IsPositive() {
		res.TaxableGain = decimal.Zero
		res.TaxRate = decimal.Zero
		res.TaxOwed = decimal.Zero
		res.NetProceeds = proceeds.Round(2)
		res.NetGain = gain.Round(2)
		res.TaxLoss = gain.Abs().Round(2)
		res.TaxType = "loss"
		if gain.IsNegative() {
			res.Advisory = fmt.Sprintf("Capital loss of %s can offset other gains (tax-loss harvesting)", res.TaxLoss.StringFixed(2))
		}
		return res, nil
	}

	a := regime.assessGain(gain, days, status)
	owed := a.taxable.Mul(a.rate).Round(2)
	if owed.IsNegative() {
		owed = decimal.Zero
	}
	res.TaxableGain = a.taxable.Round(2)
	res.TaxRate = a.rate
	res.TaxOwed = owed
	res.NetProceeds = proceeds.Sub(owed).Round(2)
	res.NetGain = gain.Sub(owed).Round(2)
	res.TaxLoss = decimal.Zero
	res.AllowanceUsed = a.allowanceUsed.Round(2)
	res.TaxType = a.taxType
	res.Advisory = a.advisory
	res.Notes = a.notes
	return res, nil
}

// Dividend assesses the tax withheld or owed on a dividend
func (c *Calculator) Dividend(amount decimal.Decimal, jurisdiction string, status TaxpayerStatus) (DividendResult, error) {
	if !amount.IsPositive() {
		return DividendResult{}, domain.NewValidationError("amount", "must be positive", domain.ErrInvalidAmount)
	}
	if status == "" {
		status = Resident
	}
	regime := c.Regime(jurisdiction)
	taxable, rate, notes := regime.assessDividend(amount, status)
	owed := taxable.Mul(rate).Round(2)
	return DividendResult{
		Jurisdiction:  regime.Name(),
		Currency:      regime.Currency(),
		Amount:        amount.Round(2),
		TaxableAmount: taxable.Round(2),
		TaxRate:       rate,
		TaxOwed:       owed,
		NetDividend:   amount.Sub(owed).Round(2),
		Notes:         notes,
	}, nil
}

// EstimateSale assesses selling a whole position at salePrice using its average cost and first purchase date.
func (c *Calculator) EstimateSale(pos *domain.Position, salePrice decimal.Decimal, saleDate time.Time, jurisdiction string, status TaxpayerStatus) (TaxResult, error) {
	if pos == nil || len(pos.Entries) == 0 {
		return TaxResult{}, domain.ErrPositionNotFound
	}
	return c.CapitalGains(CapitalGainsInput{
		PurchasePrice:  pos.AverageCost(),
		SalePrice:      salePrice,
		Quantity:       pos.TotalQuantity(),
		PurchaseDate:   pos.FirstPurchaseDate(),
		SaleDate:       saleDate,
		Jurisdiction:   jurisdiction,
		TaxpayerStatus: status,
	})
}

// HoldingDays counts whole days between two dates; zero when either is unset
func HoldingDays(from, to time.Time) int {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
