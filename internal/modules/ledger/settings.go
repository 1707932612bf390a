package ledger

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/aristath/nestegg/internal/domain"
	"github.com/shopspring/decimal"
)

// ValidateCurrency returns the ISO code for code, or a ValidationError when it is unknown.
func ValidateCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(c) == nil {
		return "", domain.NewValidationError("base_currency", fmt.Sprintf("unknown currency %q", code), nil)
	}
	return c, nil
}

// RoundToCurrency rounds amount to the minor unit of the currency (2 places when unknown).
func RoundToCurrency(amount decimal.Decimal, code string) decimal.Decimal {
	places := int32(2)
	if c := money.GetCurrency(strings.ToUpper(code)); c != nil {
		places = int32(c.Fraction)
	}
	return amount.Round(places)
}

// SettingsUpdate carries optional settings changes
type SettingsUpdate struct {
	BaseCurrency       *string          `json:"base_currency,omitempty"`
	WithdrawalRate     *float64         `json:"withdrawal_rate,omitempty"`
	RebalanceThreshold *float64         `json:"rebalance_threshold,omitempty"`
	LotMatching        *string          `json:"lot_matching,omitempty"`
	InitialValue       *decimal.Decimal `json:"initial_value,omitempty"`
}

// UpdateSettings validates every field first, then applies them together.
func (l *Ledger) UpdateSettings(u SettingsUpdate) error {
	next := l.portfolio.Settings

	if u.BaseCurrency != nil {
		code, err := ValidateCurrency(*u.BaseCurrency)
		if err != nil {
			return err
		}
		next.BaseCurrency = code
	}
	if u.WithdrawalRate != nil {
		if *u.WithdrawalRate <= 0 || *u.WithdrawalRate >= 1 {
			return domain.NewValidationError("withdrawal_rate", "must be between 0 and 1", nil)
		}
		next.WithdrawalRate = *u.WithdrawalRate
	}
	if u.RebalanceThreshold != nil {
		if *u.RebalanceThreshold <= 0 || *u.RebalanceThreshold >= 1 {
			return domain.NewValidationError("rebalance_threshold", "must be between 0 and 1", nil)
		}
		next.RebalanceThreshold = *u.RebalanceThreshold
	}
	if u.LotMatching != nil {
		method, err := ParseLotMatching(*u.LotMatching)
		if err != nil {
			return err
		}
		next.LotMatching = method
	}
	if u.InitialValue != nil {
		if u.InitialValue.IsNegative() {
			return domain.NewValidationError("initial_value", "must not be negative", nil)
		}
		next.InitialValue = *u.InitialValue
	}

	l.portfolio.Settings = next
	l.matcher = MatcherFor(next.LotMatching)
	return nil
}
