package ledger

import (
	"testing"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawalSummaryByYear(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Deposit(dec("10000"), day1))

	_, err := l.Withdraw(dec("1000"), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), domain.WithdrawalRegular, "")
	require.NoError(t, err)
	_, err = l.Withdraw(dec("500"), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), domain.WithdrawalEmergency, "")
	require.NoError(t, err)
	_, err = l.Withdraw(dec("250"), time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), domain.WithdrawalRegular, "")
	require.NoError(t, err)
	_, err = l.Withdraw(dec("700"), time.Date(2023, 12, 10, 0, 0, 0, 0, time.UTC), domain.WithdrawalRegular, "")
	require.NoError(t, err)

	s := l.WithdrawalSummary(2024)
	assert.Equal(t, 3, s.Count)
	assert.True(t, dec("1750").Equal(s.TotalWithdrawn))
	assert.True(t, dec("1250").Equal(s.ByType[domain.WithdrawalRegular]))
	assert.True(t, dec("500").Equal(s.ByType[domain.WithdrawalEmergency]))
	require.Len(t, s.Withdrawals, 3)
	assert.Equal(t, 4, int(s.Withdrawals[0].Date.Month()))

	empty := l.WithdrawalSummary(2020)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.TotalWithdrawn.IsZero())
}

func TestWithdrawalStats(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Deposit(dec("12000"), day1))
	_, err := l.Withdraw(dec("1000"), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), domain.WithdrawalRegular, "")
	require.NoError(t, err)
	_, err = l.Withdraw(dec("2000"), time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), domain.WithdrawalRegular, "")
	require.NoError(t, err)

	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	stats := l.WithdrawalStats(now, 100000)

	assert.Equal(t, 3000.0, stats.YTDAmount)
	assert.Equal(t, 2, stats.YTDCount)
	assert.Equal(t, 3000.0, stats.Last90DaysAmount)
	assert.InDelta(t, 1000.0, stats.AverageMonthly, 1e-9)
	assert.InDelta(t, 12.0, stats.AnnualizedRatePercent, 1e-9)
	assert.InDelta(t, 9.0, stats.CashRunwayMonths, 1e-9)
	require.NotNil(t, stats.LastWithdrawalDate)
	assert.Equal(t, 20, stats.LastWithdrawalDate.Day())

	assert.True(t, dec("3000").Equal(YTDWithdrawn(l.Portfolio(), now)))
}

func TestUpdateSettings(t *testing.T) {
	l := newLedger(t)

	kes := "kes"
	rate := 0.035
	fifo := "fifo"
	require.NoError(t, l.UpdateSettings(SettingsUpdate{BaseCurrency: &kes, WithdrawalRate: &rate, LotMatching: &fifo}))
	assert.Equal(t, "KES", l.Portfolio().Settings.BaseCurrency)
	assert.Equal(t, 0.035, l.Portfolio().Settings.WithdrawalRate)
	assert.Equal(t, domain.LotMatchingFIFO, l.Portfolio().Settings.LotMatching)

	bogus := "ZZZ"
	before := l.Portfolio().Settings
	err := l.UpdateSettings(SettingsUpdate{BaseCurrency: &bogus, WithdrawalRate: &rate})
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, before, l.Portfolio().Settings)

	badRate := 1.5
	assert.Error(t, l.UpdateSettings(SettingsUpdate{WithdrawalRate: &badRate}))
}

func TestRoundToCurrency(t *testing.T) {
	assert.True(t, dec("10.13").Equal(RoundToCurrency(dec("10.126"), "USD")))
	assert.True(t, dec("10").Equal(RoundToCurrency(dec("10.4"), "JPY")))
	assert.True(t, dec("10.13").Equal(RoundToCurrency(dec("10.126"), "???")))
}
