package ledger

import (
	"sort"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/shopspring/decimal"
)

// WithdrawalSummary aggregates one calendar year of withdrawals
type WithdrawalSummary struct {
	Year           int                                       `json:"year"`
	TotalWithdrawn decimal.Decimal                           `json:"total_withdrawn"`
	Count          int                                       `json:"count"`
	ByType         map[domain.WithdrawalType]decimal.Decimal `json:"by_type"`
	Withdrawals    []domain.Withdrawal                       `json:"withdrawals"`
}

// WithdrawalSummary returns the withdrawals dated in year, newest first
func (l *Ledger) WithdrawalSummary(year int) WithdrawalSummary {
	s := WithdrawalSummary{
		Year:           year,
		TotalWithdrawn: decimal.Zero,
		ByType:         map[domain.WithdrawalType]decimal.Decimal{},
		Withdrawals:    []domain.Withdrawal{},
	}
	for _, w := range l.portfolio.Withdrawals {
		if w.Date.Year() != year {
			continue
		}
		s.Count++
		s.TotalWithdrawn = s.TotalWithdrawn.Add(w.Amount)
		s.ByType[w.Type] = s.ByType[w.Type].Add(w.Amount)
		s.Withdrawals = append(s.Withdrawals, w)
	}
	sort.SliceStable(s.Withdrawals, func(i, j int) bool {
		return s.Withdrawals[i].Date.After(s.Withdrawals[j].Date)
	})
	return s
}

// WithdrawalStats describes recent spending against the portfolio
type WithdrawalStats struct {
	YTDAmount             float64    `json:"ytd_amount"`
	YTDCount              int        `json:"ytd_count"`
	Last90DaysAmount      float64    `json:"last_90_days_amount"`
	AverageMonthly        float64    `json:"average_monthly"`
	AnnualizedRatePercent float64    `json:"annualized_rate_percent"`
	CashRunwayMonths      float64    `json:"cash_runway_months"`
	LastWithdrawalDate    *time.Time `json:"last_withdrawal_date,omitempty"`
}

// YTDWithdrawn sums withdrawals dated in now's calendar year up to now
func YTDWithdrawn(p *domain.Portfolio, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, w := range p.Withdrawals {
		if w.Date.Year() == now.Year() && !w.Date.After(now) {
			total = total.Add(w.Amount)
		}
	}
	return total
}

// WithdrawalStats summarizes withdrawals as of now. portfolioValue is the
// current total value used for the annualized rate.
func (l *Ledger) WithdrawalStats(now time.Time, portfolioValue float64) WithdrawalStats {
	var stats WithdrawalStats
	cutoff := now.AddDate(0, 0, -90)

	for i, w := range l.portfolio.Withdrawals {
		amount := w.Amount.InexactFloat64()
		if w.Date.Year() == now.Year() && !w.Date.After(now) {
			stats.YTDAmount += amount
			stats.YTDCount++
		}
		if w.Date.After(cutoff) && !w.Date.After(now) {
			stats.Last90DaysAmount += amount
		}
		if stats.LastWithdrawalDate == nil || w.Date.After(*stats.LastWithdrawalDate) {
			date := l.portfolio.Withdrawals[i].Date
			stats.LastWithdrawalDate = &date
		}
	}

	months := float64(now.Month())
	stats.AverageMonthly = stats.YTDAmount / months
	if portfolioValue > 0 {
		stats.AnnualizedRatePercent = stats.AverageMonthly * 12 / portfolioValue * 100
	}
	if stats.AverageMonthly > 0 {
		stats.CashRunwayMonths = l.portfolio.CashBalance.InexactFloat64() / stats.AverageMonthly
	}
	return stats
}
