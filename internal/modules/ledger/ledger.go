// Package ledger implements position and cash bookkeeping for a single portfolio.
//
// Every mutating operation validates its input before touching state and
// stages multi-step changes on a clone, so a failed call leaves the
// portfolio exactly as it was.
package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._\-]{0,19}$`)

// Ledger wraps one portfolio and the lot matching policy used for its sells.
type Ledger struct {
	portfolio         *domain.Portfolio
	matcher           LotMatcher
	manualPriceMaxAge time.Duration
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLotMatcher overrides the portfolio's configured lot matching policy
func WithLotMatcher(m LotMatcher) Option {
	return func(l *Ledger) { l.matcher = m }
}

// WithManualPriceMaxAge sets how long a manual price stays fresh
func WithManualPriceMaxAge(d time.Duration) Option {
	return func(l *Ledger) { l.manualPriceMaxAge = d }
}

// New creates a ledger over p. The portfolio is mutated in place on success.
func New(p *domain.Portfolio, opts ...Option) *Ledger {
	if p.ManualPrices == nil {
		p.ManualPrices = map[string]domain.ManualPrice{}
	}
	l := &Ledger{
		portfolio:         p,
		matcher:           MatcherFor(p.Settings.LotMatching),
		manualPriceMaxAge: domain.DefaultThresholds().ManualPriceMaxAge,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Portfolio returns the wrapped portfolio
func (l *Ledger) Portfolio() *domain.Portfolio {
	return l.portfolio
}

// EntryInput describes a new acquisition lot
type EntryInput struct {
	Symbol    string           `json:"symbol"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	Date      time.Time        `json:"date"`
	AssetType domain.AssetType `json:"asset_type"`
	Market    string           `json:"market"`
	Notes     string           `json:"notes,omitempty"`
}

// SaleResult reports the outcome of a sell for tax and reporting
type SaleResult struct {
	Symbol              string          `json:"symbol"`
	Quantity            decimal.Decimal `json:"quantity"`
	SalePrice           decimal.Decimal `json:"sale_price"`
	Proceeds            decimal.Decimal `json:"proceeds"`
	CostBasis           decimal.Decimal `json:"cost_basis"`
	AverageCost         decimal.Decimal `json:"average_cost"`
	RealizedGain        decimal.Decimal `json:"realized_gain"`
	RealizedGainPercent float64         `json:"realized_gain_percent"`
	PurchaseDate        time.Time       `json:"purchase_date"`
	SaleDate            time.Time       `json:"sale_date"`
	ConsumedLots        []domain.Entry  `json:"consumed_lots"`
	PositionClosed      bool            `json:"position_closed"`
	LotMatching         string          `json:"lot_matching"`
}

// NormalizeSymbol upper-cases and validates a ticker symbol
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", domain.NewValidationError("symbol", fmt.Sprintf("%q is not a valid symbol", symbol), domain.ErrInvalidSymbol)
	}
	return s, nil
}

func validatePositive(field string, v decimal.Decimal, sentinel error) error {
	if !v.IsPositive() {
		return domain.NewValidationError(field, "must be greater than zero", sentinel)
	}
	return nil
}

func (in EntryInput) validate() (EntryInput, error) {
	symbol, err := NormalizeSymbol(in.Symbol)
	if err != nil {
		return in, err
	}
	if err := validatePositive("quantity", in.Quantity, domain.ErrInvalidQuantity); err != nil {
		return in, err
	}
	if err := validatePositive("price", in.Price, domain.ErrInvalidPrice); err != nil {
		return in, err
	}
	in.Symbol = symbol
	in.AssetType = domain.ParseAssetType(string(in.AssetType))
	in.Market = strings.ToUpper(strings.TrimSpace(in.Market))
	if in.Market == "" {
		in.Market = "US"
	}
	return in, nil
}

// AddEntry appends a lot, creating the position when the symbol is new.
// It records a holding without moving cash.
func (l *Ledger) AddEntry(in EntryInput) error {
	in, err := in.validate()
	if err != nil {
		return err
	}
	addLot(l.portfolio, in)
	return nil
}

func addLot(p *domain.Portfolio, in EntryInput) {
	entry := domain.Entry{Quantity: in.Quantity, Price: in.Price, Date: in.Date, Notes: in.Notes}
	if idx := p.FindPosition(in.Symbol); idx >= 0 {
		p.Positions[idx].Entries = append(p.Positions[idx].Entries, entry)
	} else {
		p.Positions = append(p.Positions, domain.Position{
			Symbol:    in.Symbol,
			AssetType: in.AssetType,
			Market:    in.Market,
			Entries:   []domain.Entry{entry},
		})
	}
	p.UpdatedAt = in.Date
}

// Buy adds a lot and pays for it from cash
func (l *Ledger) Buy(in EntryInput) error {
	in, err := in.validate()
	if err != nil {
		return err
	}
	cost := in.Quantity.Mul(in.Price)
	if cost.GreaterThan(l.portfolio.CashBalance) {
		return fmt.Errorf("buy %s costs %s, balance %s: %w",
			in.Symbol, cost.StringFixed(2), l.portfolio.CashBalance.StringFixed(2), domain.ErrInsufficientCash)
	}

	staged := l.portfolio.Clone()
	addLot(staged, in)
	staged.CashBalance = staged.CashBalance.Sub(cost)
	*l.portfolio = *staged
	return nil
}

// Sell removes qty units of symbol at salePrice and credits the proceeds to cash.
func (l *Ledger) Sell(symbol string, qty, salePrice decimal.Decimal, date time.Time) (SaleResult, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return SaleResult{}, err
	}
	if err := validatePositive("quantity", qty, domain.ErrInvalidQuantity); err != nil {
		return SaleResult{}, err
	}
	if err := validatePositive("price", salePrice, domain.ErrInvalidPrice); err != nil {
		return SaleResult{}, err
	}

	idx := l.portfolio.FindPosition(symbol)
	if idx < 0 {
		return SaleResult{}, fmt.Errorf("sell %s: %w", symbol, domain.ErrPositionNotFound)
	}
	pos := l.portfolio.Positions[idx]
	held := pos.TotalQuantity()
	if qty.GreaterThan(held) {
		return SaleResult{}, fmt.Errorf("sell %s %s, holding %s: %w",
			qty.String(), symbol, held.String(), domain.ErrInsufficientQuantity)
	}

	remaining, consumed, costBasis := l.matcher.Match(pos.Entries, qty)
	proceeds := qty.Mul(salePrice)
	gain := proceeds.Sub(costBasis)
	currency := l.portfolio.Settings.BaseCurrency

	result := SaleResult{
		Symbol:         symbol,
		Quantity:       qty,
		SalePrice:      salePrice,
		Proceeds:       RoundToCurrency(proceeds, currency),
		CostBasis:      RoundToCurrency(costBasis, currency),
		AverageCost:    pos.AverageCost(),
		RealizedGain:   RoundToCurrency(gain, currency),
		SaleDate:       date,
		ConsumedLots:   consumed,
		PositionClosed: qty.Equal(held),
		LotMatching:    string(l.matcher.Method()),
	}
	result.PurchaseDate = domain.Position{Entries: consumed}.FirstPurchaseDate()
	if costBasis.IsPositive() {
		result.RealizedGainPercent = gain.Div(costBasis).InexactFloat64() * 100
	}

	staged := l.portfolio.Clone()
	if result.PositionClosed {
		staged.Positions = append(staged.Positions[:idx], staged.Positions[idx+1:]...)
	} else {
		staged.Positions[idx].Entries = remaining
	}
	staged.CashBalance = staged.CashBalance.Add(result.Proceeds)
	staged.UpdatedAt = date
	*l.portfolio = *staged

	return result, nil
}

// Deposit adds cash
func (l *Ledger) Deposit(amount decimal.Decimal, date time.Time) error {
	if err := validatePositive("amount", amount, domain.ErrInvalidAmount); err != nil {
		return err
	}
	l.portfolio.CashBalance = l.portfolio.CashBalance.Add(amount)
	l.portfolio.UpdatedAt = date
	return nil
}

// Withdraw removes cash and appends a withdrawal record
func (l *Ledger) Withdraw(amount decimal.Decimal, date time.Time, kind domain.WithdrawalType, notes string) (domain.Withdrawal, error) {
	if err := validatePositive("amount", amount, domain.ErrInvalidAmount); err != nil {
		return domain.Withdrawal{}, err
	}
	if amount.GreaterThan(l.portfolio.CashBalance) {
		return domain.Withdrawal{}, fmt.Errorf("withdraw %s, balance %s: %w",
			amount.StringFixed(2), l.portfolio.CashBalance.StringFixed(2), domain.ErrInsufficientCash)
	}

	w := domain.Withdrawal{
		ID:     uuid.New().String(),
		Amount: amount,
		Date:   date,
		Type:   domain.ParseWithdrawalType(string(kind)),
		Notes:  notes,
	}
	staged := l.portfolio.Clone()
	staged.CashBalance = staged.CashBalance.Sub(amount)
	staged.Withdrawals = append(staged.Withdrawals, w)
	staged.UpdatedAt = date
	*l.portfolio = *staged
	return w, nil
}

// UpdateManualPrice stores a timestamped price override for symbol
func (l *Ledger) UpdateManualPrice(symbol string, price decimal.Decimal, now time.Time) error {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if err := validatePositive("price", price, domain.ErrInvalidPrice); err != nil {
		return err
	}
	l.portfolio.ManualPrices[symbol] = domain.ManualPrice{Price: price, LastUpdated: now}
	return nil
}

// IsPriceStale reports whether the manual price for symbol is missing or too old.
func (l *Ledger) IsPriceStale(symbol string, now time.Time) bool {
	mp, ok := l.portfolio.ManualPrices[strings.ToUpper(symbol)]
	if !ok {
		return true
	}
	return mp.IsStale(now, l.manualPriceMaxAge)
}

// ManualPrice returns the override for symbol. An override older than the
// max age is still returned, along with an error wrapping ErrStaleManualPrice.
func (l *Ledger) ManualPrice(symbol string, now time.Time) (domain.ManualPrice, error) {
	symbol, err := NormalizeSymbol(symbol)
	if err != nil {
		return domain.ManualPrice{}, err
	}
	mp, ok := l.portfolio.ManualPrices[symbol]
	if !ok {
		return domain.ManualPrice{}, fmt.Errorf("no manual price for %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	if mp.IsStale(now, l.manualPriceMaxAge) {
		return mp, fmt.Errorf("%s last updated %s: %w", symbol, mp.LastUpdated.Format(time.RFC3339), domain.ErrStaleManualPrice)
	}
	return mp, nil
}

// SetLotMatching switches the policy used for future sells
func (l *Ledger) SetLotMatching(method domain.LotMatching) {
	l.portfolio.Settings.LotMatching = method
	l.matcher = MatcherFor(method)
}
