package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxpayerStatus distinguishes residents from non-residents where rates differ
type TaxpayerStatus string

const (
	Resident    TaxpayerStatus = "resident"
	NonResident TaxpayerStatus = "non_resident"
)

// ParseTaxpayerStatus defaults unknown values to Resident
func ParseTaxpayerStatus(s string) TaxpayerStatus {
	if TaxpayerStatus(s) == NonResident || s == "non-resident" {
		return NonResident
	}
	return Resident
}

// Jurisdiction identifiers
const (
	Kenya         = "kenya"
	US            = "us"
	UK            = "uk"
	International = "international"
)

// gainAssessment is what a regime decides about a positive gain
type gainAssessment struct {
	taxable       decimal.Decimal
	rate          decimal.Decimal
	taxType       string
	allowanceUsed decimal.Decimal
	advisory      string
	notes         string
}

// Regime is one jurisdiction's rate table
type Regime interface {
	Name() string
	Currency() string
	assessGain(gain decimal.Decimal, holdingDays int, status TaxpayerStatus) gainAssessment
	assessDividend(amount decimal.Decimal, status TaxpayerStatus) (taxable, rate decimal.Decimal, notes string)
}

// holdingPeriodAware is implemented by regimes whose rate falls after a holding threshold.
type holdingPeriodAware interface {
	longTermAfterDays() int
	rateSpread() decimal.Decimal
}

// FlatRegime taxes every gain at one rate regardless of holding period
type FlatRegime struct {
	Jurisdiction        string
	CurrencyCode        string
	ResidentRate        decimal.Decimal
	NonResidentRate     decimal.Decimal
	DividendResident    decimal.Decimal
	DividendNonResident decimal.Decimal
	Advisory            string
}

func (r FlatRegime) Name() string     { return r.Jurisdiction }
func (r FlatRegime) Currency() string { return r.CurrencyCode }

func (r FlatRegime) assessGain(gain decimal.Decimal, holdingDays int, status TaxpayerStatus) gainAssessment {
	rate := r.ResidentRate
	if status == NonResident {
		rate = r.NonResidentRate
	}
	a := gainAssessment{
		taxable: gain,
		rate:    rate,
		taxType: "flat",
		notes:   fmt.Sprintf("Flat %s%% capital gains rate", rate.Shift(2).String()),
	}
	switch {
	case r.Advisory != "":
		a.advisory = r.Advisory
	case holdingDays < 365:
		a.advisory = "Holding period does not change the rate in this jurisdiction"
	}
	return a
}

func (r FlatRegime) assessDividend(amount decimal.Decimal, status TaxpayerStatus) (decimal.Decimal, decimal.Decimal, string) {
	rate := r.DividendResident
	label := "resident"
	if status == NonResident {
		rate = r.DividendNonResident
		label = "non-resident"
	}
	return amount, rate, fmt.Sprintf("Dividend tax %s%% (%s)", rate.Shift(2).String(), label)
}

// HoldingPeriodRegime taxes short holdings at a higher rate than long ones
type HoldingPeriodRegime struct {
	Jurisdiction  string
	CurrencyCode  string
	ShortTermRate decimal.Decimal
	LongTermRate  decimal.Decimal
	LongTermDays  int
	DividendRate  decimal.Decimal
}

func (r HoldingPeriodRegime) Name() string                { return r.Jurisdiction }
func (r HoldingPeriodRegime) Currency() string            { return r.CurrencyCode }
func (r HoldingPeriodRegime) longTermAfterDays() int      { return r.LongTermDays }
func (r HoldingPeriodRegime) rateSpread() decimal.Decimal { return r.ShortTermRate.Sub(r.LongTermRate) }

func (r HoldingPeriodRegime) assessGain(gain decimal.Decimal, holdingDays int, _ TaxpayerStatus) gainAssessment {
	if holdingDays >= r.LongTermDays {
		return gainAssessment{
			taxable:  gain,
			rate:     r.LongTermRate,
			taxType:  "long_term",
			advisory: "Long-term rate applies (held over a year)",
			notes:    fmt.Sprintf("Long-term rate %s%%", r.LongTermRate.Shift(2).String()),
		}
	}
	remaining := r.LongTermDays - holdingDays
	saved := gain.Mul(r.rateSpread()).Round(2)
	return gainAssessment{
		taxable: gain,
		rate:    r.ShortTermRate,
		taxType: "short_term",
		advisory: fmt.Sprintf("Short-term gains are taxed as ordinary income. Holding %d more days would qualify for the long-term rate and save %s",
			remaining, saved.StringFixed(2)),
		notes: fmt.Sprintf("Short-term rate %s%%", r.ShortTermRate.Shift(2).String()),
	}
}

func (r HoldingPeriodRegime) assessDividend(amount decimal.Decimal, _ TaxpayerStatus) (decimal.Decimal, decimal.Decimal, string) {
	return amount, r.DividendRate, fmt.Sprintf("Qualified dividend rate %s%%", r.DividendRate.Shift(2).String())
}

// AllowanceRegime exempts an annual allowance before applying a flat rate
type AllowanceRegime struct {
	Jurisdiction      string
	CurrencyCode      string
	Allowance         decimal.Decimal
	Rate              decimal.Decimal
	DividendAllowance decimal.Decimal
	DividendRate      decimal.Decimal
}

func (r AllowanceRegime) Name() string     { return r.Jurisdiction }
func (r AllowanceRegime) Currency() string { return r.CurrencyCode }

func (r AllowanceRegime) assessGain(gain decimal.Decimal, _ int, _ TaxpayerStatus) gainAssessment {
	a := gainAssessment{
		taxable:       decimal.Max(decimal.Zero, gain.Sub(r.Allowance)),
		rate:          r.Rate,
		taxType:       "allowance",
		allowanceUsed: decimal.Min(gain, r.Allowance),
		notes: fmt.Sprintf("Annual allowance %s, then %s%%",
			r.Allowance.StringFixed(0), r.Rate.Shift(2).String()),
	}
	if !gain.GreaterThan(r.Allowance) {
		a.advisory = fmt.Sprintf("Gain falls within the %s annual allowance, no tax owed", r.Allowance.StringFixed(0))
	}
	return a
}

func (r AllowanceRegime) assessDividend(amount decimal.Decimal, _ TaxpayerStatus) (decimal.Decimal, decimal.Decimal, string) {
	if !amount.GreaterThan(r.DividendAllowance) {
		return decimal.Zero, r.DividendRate, fmt.Sprintf("Within the %s dividend allowance, no tax", r.DividendAllowance.StringFixed(0))
	}
	return amount.Sub(r.DividendAllowance), r.DividendRate,
		fmt.Sprintf("Dividend rate %s%% after the %s allowance", r.DividendRate.Shift(2).String(), r.DividendAllowance.StringFixed(0))
}

// DefaultRegimes returns the built-in jurisdiction tables
func DefaultRegimes() map[string]Regime {
	pct := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return map[string]Regime{
		Kenya: FlatRegime{
			Jurisdiction:        Kenya,
			CurrencyCode:        "KES",
			ResidentRate:        pct("0.05"),
			NonResidentRate:     pct("0.05"),
			DividendResident:    pct("0.05"),
			DividendNonResident: pct("0.15"),
		},
		US: HoldingPeriodRegime{
			Jurisdiction:  US,
			CurrencyCode:  "USD",
			ShortTermRate: pct("0.22"),
			LongTermRate:  pct("0.15"),
			LongTermDays:  365,
			DividendRate:  pct("0.15"),
		},
		UK: AllowanceRegime{
			Jurisdiction:      UK,
			CurrencyCode:      "GBP",
			Allowance:         pct("3000"),
			Rate:              pct("0.10"),
			DividendAllowance: pct("500"),
			DividendRate:      pct("0.0875"),
		},
		International: FlatRegime{
			Jurisdiction:        International,
			CurrencyCode:        "USD",
			ResidentRate:        pct("0.20"),
			NonResidentRate:     pct("0.20"),
			DividendResident:    pct("0.15"),
			DividendNonResident: pct("0.15"),
			Advisory:            "Estimate only: consult a local tax advisor for the rates in your jurisdiction",
		},
	}
}
