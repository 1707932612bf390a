package ledger

import (
	"bytes"
	"testing"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	day1 = time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func snapshot(t *testing.T, p *domain.Portfolio) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	require.NoError(t, enc.Encode(p))
	return buf.Bytes()
}

func newLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	p := domain.NewPortfolio("user-1", day1)
	return New(p, opts...)
}

func buy(t *testing.T, l *Ledger, symbol, qty, price string, date time.Time) {
	t.Helper()
	require.NoError(t, l.AddEntry(EntryInput{
		Symbol:   symbol,
		Quantity: dec(qty),
		Price:    dec(price),
		Date:     date,
	}))
}

func TestAddEntryCreatesAndAppends(t *testing.T) {
	l := newLedger(t)
	buy(t, l, "aapl", "10", "150", day1)
	buy(t, l, "AAPL", "10", "170", day2)

	p := l.Portfolio()
	require.Len(t, p.Positions, 1)
	pos := p.Positions[0]
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.Equal(t, domain.AssetTypeStock, pos.AssetType)
	assert.Equal(t, "US", pos.Market)
	assert.True(t, dec("20").Equal(pos.TotalQuantity()))
	assert.True(t, dec("160").Equal(pos.AverageCost()))
	assert.True(t, pos.TotalInvested().Equal(pos.AverageCost().Mul(pos.TotalQuantity())))
}

func TestAddEntryValidation(t *testing.T) {
	tests := []struct {
		name     string
		in       EntryInput
		sentinel error
	}{
		{"zero quantity", EntryInput{Symbol: "AAPL", Quantity: dec("0"), Price: dec("1")}, domain.ErrInvalidQuantity},
		{"negative price", EntryInput{Symbol: "AAPL", Quantity: dec("1"), Price: dec("-1")}, domain.ErrInvalidPrice},
		{"bad symbol", EntryInput{Symbol: "AA PL", Quantity: dec("1"), Price: dec("1")}, domain.ErrInvalidSymbol},
		{"empty symbol", EntryInput{Symbol: "", Quantity: dec("1"), Price: dec("1")}, domain.ErrInvalidSymbol},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newLedger(t)
			before := snapshot(t, l.Portfolio())

			err := l.AddEntry(tc.in)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, before, snapshot(t, l.Portfolio()))
		})
	}
}

func TestBuyDeductsCash(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Deposit(dec("2000"), day1))

	err := l.Buy(EntryInput{Symbol: "MSFT", Quantity: dec("5"), Price: dec("300"), Date: day1})
	require.NoError(t, err)

	assert.True(t, dec("500").Equal(l.Portfolio().CashBalance))
	assert.Len(t, l.Portfolio().Positions, 1)
}

func TestBuyInsufficientCashLeavesLedgerUnchanged(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Deposit(dec("100"), day1))
	before := snapshot(t, l.Portfolio())

	err := l.Buy(EntryInput{Symbol: "MSFT", Quantity: dec("5"), Price: dec("300"), Date: day1})
	require.ErrorIs(t, err, domain.ErrInsufficientCash)
	assert.Equal(t, before, snapshot(t, l.Portfolio()))
}

func TestSellAllRealizesGainAndRemovesPosition(t *testing.T) {
	l := newLedger(t)
	buy(t, l, "AAPL", "10", "150", day1)

	res, err := l.Sell("AAPL", dec("10"), dec("270"), day3)
	require.NoError(t, err)

	assert.True(t, dec("1200").Equal(res.RealizedGain), res.RealizedGain.String())
	assert.True(t, dec("1500").Equal(res.CostBasis))
	assert.True(t, dec("2700").Equal(res.Proceeds))
	assert.InDelta(t, 80.0, res.RealizedGainPercent, 1e-9)
	assert.True(t, res.PositionClosed)
	assert.Equal(t, day1, res.PurchaseDate)
	assert.Empty(t, l.Portfolio().Positions)
	assert.True(t, dec("2700").Equal(l.Portfolio().CashBalance))
}

func TestSellPartialAverageCostScalesInvested(t *testing.T) {
	l := newLedger(t)
	buy(t, l, "AAPL", "10", "100", day1)
	buy(t, l, "AAPL", "30", "200", day2)

	pos := l.Portfolio().Positions[0]
	avgBefore := pos.AverageCost()
	investedBefore := pos.TotalInvested()

	res, err := l.Sell("AAPL", dec("10"), dec("250"), day3)
	require.NoError(t, err)

	after := l.Portfolio().Positions[0]
	assert.True(t, dec("30").Equal(after.TotalQuantity()))
	assert.True(t, avgBefore.Equal(after.AverageCost()), after.AverageCost().String())
	assert.True(t, investedBefore.Mul(dec("0.75")).Equal(after.TotalInvested()))

	expectedGain := dec("10").Mul(dec("250").Sub(avgBefore))
	assert.True(t, expectedGain.Equal(res.RealizedGain))
	assert.False(t, res.PositionClosed)
	assert.Equal(t, string(domain.LotMatchingAverageCost), res.LotMatching)
}

func TestSellAverageCostKeepsExactQuantity(t *testing.T) {
	l := newLedger(t)
	buy(t, l, "KCB", "1", "30", day1)
	buy(t, l, "KCB", "1", "31", day2)
	buy(t, l, "KCB", "1", "32", day3)

	_, err := l.Sell("KCB", dec("1"), dec("35"), day3)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(l.Portfolio().Positions[0].TotalQuantity()))

	_, err = l.Sell("KCB", dec("2"), dec("35"), day3)
	require.NoError(t, err)
	assert.Empty(t, l.Portfolio().Positions)
}

func TestSellFIFOConsumesOldestLots(t *testing.T) {
	l := newLedger(t, WithLotMatcher(FIFO{}))
	buy(t, l, "AAPL", "10", "100", day2)
	buy(t, l, "AAPL", "10", "50", day1)

	res, err := l.Sell("AAPL", dec("15"), dec("120"), day3)
	require.NoError(t, err)

	// 10 @ 50 from day1 then 5 @ 100 from day2
	assert.True(t, dec("1000").Equal(res.CostBasis), res.CostBasis.String())
	assert.True(t, dec("800").Equal(res.RealizedGain))
	assert.Equal(t, day1, res.PurchaseDate)

	remaining := l.Portfolio().Positions[0]
	require.Len(t, remaining.Entries, 1)
	assert.True(t, dec("5").Equal(remaining.Entries[0].Quantity))
	assert.True(t, dec("100").Equal(remaining.Entries[0].Price))
}

func TestSellLIFOConsumesNewestLots(t *testing.T) {
	l := newLedger(t, WithLotMatcher(LIFO{}))
	buy(t, l, "AAPL", "10", "100", day1)
	buy(t, l, "AAPL", "10", "50", day2)

	res, err := l.Sell("AAPL", dec("10"), dec("120"), day3)
	require.NoError(t, err)

	assert.True(t, dec("500").Equal(res.CostBasis))
	assert.Equal(t, day2, res.PurchaseDate)
	assert.True(t, dec("100").Equal(l.Portfolio().Positions[0].AverageCost()))
}

func TestSellErrorsLeaveLedgerUnchanged(t *testing.T) {
	l := newLedger(t)
	buy(t, l, "AAPL", "10", "150", day1)
	before := snapshot(t, l.Portfolio())

	_, err := l.Sell("AAPL", dec("11"), dec("100"), day3)
	assert.ErrorIs(t, err, domain.ErrInsufficientQuantity)

	_, err = l.Sell("TSLA", dec("1"), dec("100"), day3)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	_, err = l.Sell("AAPL", dec("1"), dec("0"), day3)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	assert.Equal(t, before, snapshot(t, l.Portfolio()))
}

func TestDepositAndWithdraw(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Deposit(dec("1000"), day1))

	w, err := l.Withdraw(dec("400"), day2, domain.WithdrawalEmergency, "car repair")
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, domain.WithdrawalEmergency, w.Type)
	assert.True(t, dec("600").Equal(l.Portfolio().CashBalance))
	assert.Len(t, l.Portfolio().Withdrawals, 1)

	before := snapshot(t, l.Portfolio())
	_, err = l.Withdraw(dec("601"), day2, domain.WithdrawalRegular, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientCash)
	assert.Equal(t, before, snapshot(t, l.Portfolio()))

	err = l.Deposit(dec("-5"), day2)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestManualPriceStaleness(t *testing.T) {
	l := newLedger(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, l.IsPriceStale("SCOM", now))

	require.NoError(t, l.UpdateManualPrice("scom", dec("17.5"), now))
	assert.False(t, l.IsPriceStale("SCOM", now.Add(23*time.Hour)))
	assert.True(t, l.IsPriceStale("SCOM", now.Add(25*time.Hour)))

	err := l.UpdateManualPrice("SCOM", dec("0"), now)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestManualPriceLookup(t *testing.T) {
	l := newLedger(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := l.ManualPrice("SCOM", now)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	require.NoError(t, l.UpdateManualPrice("SCOM", dec("17.5"), now))
	mp, err := l.ManualPrice("scom", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, dec("17.5").Equal(mp.Price))

	mp, err = l.ManualPrice("SCOM", now.Add(25*time.Hour))
	assert.ErrorIs(t, err, domain.ErrStaleManualPrice)
	assert.True(t, dec("17.5").Equal(mp.Price))
	assert.Equal(t, now, mp.LastUpdated)
}

func TestSellRoundsMoneyToCurrency(t *testing.T) {
	l := newLedger(t)
	buy(t, l, "VOO", "3", "100", day1)

	res, err := l.Sell("VOO", dec("0.333"), dec("101.27"), day2)
	require.NoError(t, err)
	assert.True(t, dec("33.72").Equal(res.Proceeds), res.Proceeds.String())
	assert.True(t, dec("33.3").Equal(res.CostBasis), res.CostBasis.String())
	assert.True(t, dec("0.42").Equal(res.RealizedGain), res.RealizedGain.String())
	assert.True(t, dec("33.72").Equal(l.Portfolio().CashBalance))

	require.NoError(t, l.UpdateSettings(SettingsUpdate{BaseCurrency: strPtr("JPY")}))
	res, err = l.Sell("VOO", dec("1"), dec("150.6"), day3)
	require.NoError(t, err)
	assert.True(t, dec("151").Equal(res.Proceeds), res.Proceeds.String())
	assert.True(t, dec("51").Equal(res.RealizedGain), res.RealizedGain.String())
}

func strPtr(s string) *string { return &s }

func TestLotArithmeticHoldsAcrossBuysAndSells(t *testing.T) {
	for _, m := range []LotMatcher{AverageCost{}, FIFO{}, LIFO{}} {
		t.Run(string(m.Method()), func(t *testing.T) {
			l := newLedger(t, WithLotMatcher(m))
			buy(t, l, "VOO", "3", "101.25", day1)
			buy(t, l, "VOO", "7", "99.10", day2)
			_, err := l.Sell("VOO", dec("4"), dec("105"), day3)
			require.NoError(t, err)
			buy(t, l, "VOO", "2.5", "110", day3)

			pos := l.Portfolio().Positions[0]
			assert.True(t, dec("8.5").Equal(pos.TotalQuantity()), pos.TotalQuantity().String())
			assert.False(t, pos.TotalQuantity().IsNegative())
			assert.True(t, pos.AverageCost().Equal(pos.TotalInvested().Div(pos.TotalQuantity())))
		})
	}
}
