package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/events"
	"github.com/aristath/nestegg/internal/modules/ledger"
	"github.com/aristath/nestegg/internal/modules/scoring"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/aristath/nestegg/internal/modules/valuation"
	"github.com/aristath/nestegg/internal/modules/withdrawal"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const topHoldingsCount = 5

// Service orchestrates the ledger, valuation, scoring, planning, tax and
// event components for every user's portfolio.
//
// Mutations are serialized per user: each one loads the ledger, applies the
// change to a clone, saves it and only then publishes the change event.
// Reads never take the per-user lock; they see the last saved ledger.
type Service struct {
	store     domain.PortfolioStore
	valuation *valuation.Engine
	scorer    *scoring.HealthScorer
	planner   *withdrawal.Planner
	taxCalc   *tax.Calculator
	detector  *events.Detector
	events    *events.Manager
	now       func() time.Time
	log       zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new portfolio service. eventManager may be nil.
func NewService(
	store domain.PortfolioStore,
	engine *valuation.Engine,
	scorer *scoring.HealthScorer,
	planner *withdrawal.Planner,
	taxCalc *tax.Calculator,
	detector *events.Detector,
	eventManager *events.Manager,
	log zerolog.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		store:     store,
		valuation: engine,
		scorer:    scorer,
		planner:   planner,
		taxCalc:   taxCalc,
		detector:  detector,
		events:    eventManager,
		now:       time.Now,
		log:       log.With().Str("service", "portfolio").Logger(),
		locks:     map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeUserID(userID string) (string, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return "", domain.NewValidationError("user_id", "must not be empty", nil)
	}
	return id, nil
}

// lock takes the user's mutex and returns its unlock func
func (s *Service) lock(userID string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Portfolio loads the stored ledger for userID
func (s *Service) Portfolio(ctx context.Context, userID string) (*domain.Portfolio, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	return s.store.LoadPortfolio(ctx, id)
}

func (s *Service) loadOrCreate(ctx context.Context, userID string) (*domain.Portfolio, error) {
	p, err := s.store.LoadPortfolio(ctx, userID)
	if errors.Is(err, domain.ErrPortfolioNotFound) {
		s.log.Info().Str("user_id", userID).Msg("Creating portfolio")
		return domain.NewPortfolio(userID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	return p, nil
}

// change is the event published after a successful mutation
type change struct {
	symbol  string
	message string
	data    events.EventData
}

// mutate runs fn against a staged copy of the user's ledger and commits it
// only when fn succeeds and the store accepts the result.
func (s *Service) mutate(ctx context.Context, userID string, fn func(l *ledger.Ledger) (*change, error)) (*domain.Portfolio, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	current, err := s.loadOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	l := ledger.New(current.Clone(), ledger.WithManualPriceMaxAge(s.valuation.Thresholds().ManualPriceMaxAge))
	c, err := fn(l)
	if err != nil {
		return nil, err
	}

	next := l.Portfolio()
	next.UpdatedAt = s.now()
	if err := s.store.SavePortfolio(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save portfolio: %w", err)
	}

	if c != nil && s.events != nil {
		s.events.Emit(c.symbol, c.message, c.data)
	}
	return next, nil
}

func (s *Service) dateOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}

// Deposit adds cash to the user's portfolio
func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal, date time.Time) (*domain.Portfolio, error) {
	return s.mutate(ctx, userID, func(l *ledger.Ledger) (*change, error) {
		if err := l.Deposit(amount, s.dateOrNow(date)); err != nil {
			return nil, err
		}
		p := l.Portfolio()
		return &change{
			message: fmt.Sprintf("Deposited %s %s", amount.StringFixed(2), p.Settings.BaseCurrency),
			data: &events.CashMovementData{
				Type:        events.DepositRecorded,
				UserID:      p.UserID,
				Amount:      amount.String(),
				CashBalance: p.CashBalance.String(),
			},
		}, nil
	})
}

// Buy records a lot and pays for it from cash
func (s *Service) Buy(ctx context.Context, userID string, in ledger.EntryInput) (*domain.Portfolio, error) {
	return s.addLot(ctx, userID, in, true)
}

// AddEntry records an existing lot without moving cash
func (s *Service) AddEntry(ctx context.Context, userID string, in ledger.EntryInput) (*domain.Portfolio, error) {
	return s.addLot(ctx, userID, in, false)
}

func (s *Service) addLot(ctx context.Context, userID string, in ledger.EntryInput, payFromCash bool) (*domain.Portfolio, error) {
	in.Date = s.dateOrNow(in.Date)
	return s.mutate(ctx, userID, func(l *ledger.Ledger) (*change, error) {
		var err error
		if payFromCash {
			err = l.Buy(in)
		} else {
			err = l.AddEntry(in)
		}
		if err != nil {
			return nil, err
		}
		symbol, _ := ledger.NormalizeSymbol(in.Symbol)
		return &change{
			symbol:  symbol,
			message: fmt.Sprintf("Bought %s %s at %s", in.Quantity.String(), symbol, in.Price.StringFixed(2)),
			data: &events.TradeData{
				Type:     events.PositionBought,
				UserID:   l.Portfolio().UserID,
				Quantity: in.Quantity.String(),
				Price:    in.Price.String(),
			},
		}, nil
	})
}

// SellRequest describes a sale. Jurisdiction and TaxpayerStatus only affect
// the attached tax estimate.
type SellRequest struct {
	Symbol         string          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Date           time.Time       `json:"date"`
	Jurisdiction   string          `json:"jurisdiction,omitempty"`
	TaxpayerStatus string          `json:"taxpayer_status,omitempty"`
}

// SellOutcome is a completed sale with its tax estimate
type SellOutcome struct {
	Sale        ledger.SaleResult `json:"sale"`
	Tax         *tax.TaxResult    `json:"tax,omitempty"`
	CashBalance decimal.Decimal   `json:"cash_balance"`
}

// Sell removes shares, credits the proceeds and estimates the tax on the realized gain
func (s *Service) Sell(ctx context.Context, userID string, req SellRequest) (SellOutcome, error) {
	var out SellOutcome
	date := s.dateOrNow(req.Date)

	p, err := s.mutate(ctx, userID, func(l *ledger.Ledger) (*change, error) {
		sale, err := l.Sell(req.Symbol, req.Quantity, req.Price, date)
		if err != nil {
			return nil, err
		}
		out.Sale = sale
		return &change{
			symbol:  sale.Symbol,
			message: fmt.Sprintf("Sold %s %s at %s", sale.Quantity.String(), sale.Symbol, sale.SalePrice.StringFixed(2)),
			data: &events.TradeData{
				Type:         events.PositionSold,
				UserID:       l.Portfolio().UserID,
				Quantity:     sale.Quantity.String(),
				Price:        sale.SalePrice.String(),
				RealizedGain: sale.RealizedGain.String(),
				LotMatching:  sale.LotMatching,
			},
		}, nil
	})
	if err != nil {
		return SellOutcome{}, err
	}
	out.CashBalance = p.CashBalance

	if s.taxCalc != nil {
		result, err := s.taxCalc.CapitalGains(tax.CapitalGainsInput{
			PurchasePrice:  out.Sale.CostBasis.Div(out.Sale.Quantity),
			SalePrice:      out.Sale.SalePrice,
			Quantity:       out.Sale.Quantity,
			PurchaseDate:   out.Sale.PurchaseDate,
			SaleDate:       out.Sale.SaleDate,
			Jurisdiction:   req.Jurisdiction,
			TaxpayerStatus: tax.ParseTaxpayerStatus(req.TaxpayerStatus),
		})
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", out.Sale.Symbol).Msg("Failed to estimate tax on sale")
		} else {
			out.Tax = &result
		}
	}
	return out, nil
}

// WithdrawRequest describes a cash withdrawal
type WithdrawRequest struct {
	Amount decimal.Decimal       `json:"amount"`
	Date   time.Time             `json:"date"`
	Type   domain.WithdrawalType `json:"type"`
	Notes  string                `json:"notes,omitempty"`
}

// WithdrawOutcome is a recorded withdrawal and the balance left behind
type WithdrawOutcome struct {
	Withdrawal  domain.Withdrawal `json:"withdrawal"`
	CashBalance decimal.Decimal   `json:"cash_balance"`
}

// Withdraw removes cash and appends a withdrawal record
func (s *Service) Withdraw(ctx context.Context, userID string, req WithdrawRequest) (WithdrawOutcome, error) {
	var out WithdrawOutcome
	p, err := s.mutate(ctx, userID, func(l *ledger.Ledger) (*change, error) {
		w, err := l.Withdraw(req.Amount, s.dateOrNow(req.Date), req.Type, req.Notes)
		if err != nil {
			return nil, err
		}
		out.Withdrawal = w
		return &change{
			message: fmt.Sprintf("Withdrew %s (%s)", w.Amount.StringFixed(2), w.Type),
			data: &events.CashMovementData{
				Type:        events.WithdrawalRecorded,
				UserID:      l.Portfolio().UserID,
				Amount:      w.Amount.String(),
				CashBalance: l.Portfolio().CashBalance.String(),
				Kind:        string(w.Type),
			},
		}, nil
	})
	if err != nil {
		return WithdrawOutcome{}, err
	}
	out.CashBalance = p.CashBalance
	return out, nil
}

// UpdateManualPrice stores a price override for symbol, timestamped now
func (s *Service) UpdateManualPrice(ctx context.Context, userID, symbol string, price decimal.Decimal) (*domain.Portfolio, error) {
	return s.mutate(ctx, userID, func(l *ledger.Ledger) (*change, error) {
		if err := l.UpdateManualPrice(symbol, price, s.now()); err != nil {
			return nil, err
		}
		normalized, _ := ledger.NormalizeSymbol(symbol)
		return &change{
			symbol:  normalized,
			message: fmt.Sprintf("Manual price for %s set to %s", normalized, price.StringFixed(2)),
			data:    &events.ManualPriceData{UserID: l.Portfolio().UserID, Price: price.String()},
		}, nil
	})
}

// ManualPriceView is a stored price override and whether it is still trusted
type ManualPriceView struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	LastUpdated time.Time       `json:"last_updated"`
	Stale       bool            `json:"stale"`
	Warning     string          `json:"warning,omitempty"`
}

// ManualPrice returns the user's override for symbol. A stale override is
// returned with Stale set rather than as an error.
func (s *Service) ManualPrice(ctx context.Context, userID, symbol string) (ManualPriceView, error) {
	p, err := s.Portfolio(ctx, userID)
	if err != nil {
		return ManualPriceView{}, err
	}
	l := ledger.New(p, ledger.WithManualPriceMaxAge(s.valuation.Thresholds().ManualPriceMaxAge))
	mp, err := l.ManualPrice(symbol, s.now())
	stale := errors.Is(err, domain.ErrStaleManualPrice)
	if err != nil && !stale {
		return ManualPriceView{}, err
	}

	normalized, _ := ledger.NormalizeSymbol(symbol)
	view := ManualPriceView{
		Symbol:      normalized,
		Price:       mp.Price,
		LastUpdated: mp.LastUpdated,
		Stale:       stale,
	}
	if stale {
		view.Warning = err.Error()
	}
	return view, nil
}

// UpdateSettings applies a partial settings change
func (s *Service) UpdateSettings(ctx context.Context, userID string, u ledger.SettingsUpdate) (domain.Settings, error) {
	p, err := s.mutate(ctx, userID, func(l *ledger.Ledger) (*change, error) {
		return nil, l.UpdateSettings(u)
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return p.Settings, nil
}

// ValuePortfolio prices the user's portfolio
func (s *Service) ValuePortfolio(ctx context.Context, userID string) (valuation.Valuation, error) {
	_, v, err := s.value(ctx, userID)
	return v, err
}

func (s *Service) value(ctx context.Context, userID string) (*domain.Portfolio, valuation.Valuation, error) {
	p, err := s.Portfolio(ctx, userID)
	if err != nil {
		return nil, valuation.Valuation{}, err
	}
	return p, s.valuation.Value(ctx, p, s.now()), nil
}

// ScoreHealth rates the portfolio against a risk score in [0, 1]
func (s *Service) ScoreHealth(ctx context.Context, userID string, riskScore float64) (scoring.HealthScore, error) {
	v, err := s.ValuePortfolio(ctx, userID)
	if err != nil {
		return scoring.HealthScore{}, err
	}
	return s.scorer.Score(v, riskScore), nil
}

// WithdrawalPlan is the full plan plus the user's recent withdrawal activity
type WithdrawalPlan struct {
	withdrawal.Plan
	Stats ledger.WithdrawalStats `json:"stats"`
}

// PlanWithdrawal runs the combined withdrawal plan at the portfolio's configured rate
func (s *Service) PlanWithdrawal(ctx context.Context, userID string) (WithdrawalPlan, error) {
	p, v, err := s.value(ctx, userID)
	if err != nil {
		return WithdrawalPlan{}, err
	}
	plan, err := s.planner.PlanAtRate(ctx, v.TotalValue, v.InitialValue, v.YTDWithdrawn, p.Settings.WithdrawalRate)
	if err != nil {
		return WithdrawalPlan{}, err
	}
	return WithdrawalPlan{
		Plan:  plan,
		Stats: ledger.New(p).WithdrawalStats(s.now(), v.TotalValue),
	}, nil
}

// ScenarioRequest overrides the projection inputs. Nil fields use the
// portfolio's value and safe withdrawal.
type ScenarioRequest struct {
	AnnualWithdrawal *float64 `json:"annual_withdrawal,omitempty"`
	Years            int      `json:"years,omitempty"`
	ExpectedReturn   *float64 `json:"expected_return,omitempty"`
	Inflation        *float64 `json:"inflation,omitempty"`
}

// Scenario projects the current portfolio forward under req
func (s *Service) Scenario(ctx context.Context, userID string, req ScenarioRequest) (withdrawal.Projection, error) {
	p, v, err := s.value(ctx, userID)
	if err != nil {
		return withdrawal.Projection{}, err
	}
	annual := v.TotalValue * p.Settings.WithdrawalRate
	if req.AnnualWithdrawal != nil {
		annual = *req.AnnualWithdrawal
	}
	return s.planner.Project(withdrawal.ProjectionParams{
		StartingValue:    v.TotalValue,
		AnnualWithdrawal: annual,
		Years:            req.Years,
		ExpectedReturn:   req.ExpectedReturn,
		Inflation:        req.Inflation,
	})
}

// RequiredPortfolio sizes a portfolio for a desired annual income
func (s *Service) RequiredPortfolio(income, rate float64) (withdrawal.RequiredPortfolioResult, error) {
	return s.planner.RequiredPortfolio(income, rate)
}

// TaxEstimateRequest asks what selling a whole position would cost in tax.
// A nil SalePrice uses the current valuation price.
type TaxEstimateRequest struct {
	Symbol         string           `json:"symbol"`
	SalePrice      *decimal.Decimal `json:"sale_price,omitempty"`
	SaleDate       time.Time        `json:"sale_date"`
	Jurisdiction   string           `json:"jurisdiction,omitempty"`
	TaxpayerStatus string           `json:"taxpayer_status,omitempty"`
}

// EstimateTax assesses selling an entire position
func (s *Service) EstimateTax(ctx context.Context, userID string, req TaxEstimateRequest) (tax.TaxResult, error) {
	symbol, err := ledger.NormalizeSymbol(req.Symbol)
	if err != nil {
		return tax.TaxResult{}, err
	}
	p, err := s.Portfolio(ctx, userID)
	if err != nil {
		return tax.TaxResult{}, err
	}
	idx := p.FindPosition(symbol)
	if idx < 0 {
		return tax.TaxResult{}, fmt.Errorf("%s: %w", symbol, domain.ErrPositionNotFound)
	}

	var price decimal.Decimal
	if req.SalePrice != nil {
		price = *req.SalePrice
	} else {
		v := s.valuation.Value(ctx, p, s.now())
		for _, h := range v.Holdings {
			if h.Symbol == symbol {
				price = decimal.NewFromFloat(h.CurrentPrice)
				break
			}
		}
	}
	return s.taxCalc.EstimateSale(&p.Positions[idx], price, s.dateOrNow(req.SaleDate), req.Jurisdiction, tax.ParseTaxpayerStatus(req.TaxpayerStatus))
}

// DividendTax assesses a dividend payment
func (s *Service) DividendTax(amount decimal.Decimal, jurisdiction, status string) (tax.DividendResult, error) {
	return s.taxCalc.Dividend(amount, jurisdiction, tax.ParseTaxpayerStatus(status))
}

// DetectEvents runs every alert rule over the current portfolio
func (s *Service) DetectEvents(ctx context.Context, userID string, riskScore float64) ([]events.Event, error) {
	v, err := s.ValuePortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	health := s.scorer.Score(v, riskScore)
	return s.detector.Detect(v, health, domain.RiskProfileFromScore(riskScore), s.now()), nil
}

// WithdrawalSummary aggregates one calendar year of withdrawals. Year zero means the current year.
func (s *Service) WithdrawalSummary(ctx context.Context, userID string, year int) (ledger.WithdrawalSummary, error) {
	p, err := s.Portfolio(ctx, userID)
	if err != nil {
		return ledger.WithdrawalSummary{}, err
	}
	if year == 0 {
		year = s.now().Year()
	}
	return ledger.New(p).WithdrawalSummary(year), nil
}

// Overview is the headline figures of a portfolio
type Overview struct {
	BaseCurrency      string   `json:"base_currency"`
	TotalValue        float64  `json:"total_value"`
	TotalInvested     float64  `json:"total_invested"`
	TotalPL           float64  `json:"total_pl"`
	TotalPLPercent    float64  `json:"total_pl_percent"`
	CashBalance       float64  `json:"cash_balance"`
	HoldingsCount     int      `json:"holdings_count"`
	StalePrices       []string `json:"stale_prices"`
	UnavailablePrices []string `json:"unavailable_prices"`
}

// WithdrawalOverview is the withdrawal section of a summary
type WithdrawalOverview struct {
	Safe  withdrawal.SafeWithdrawalResult `json:"safe"`
	Stats ledger.WithdrawalStats          `json:"stats"`
}

// Summary is the dashboard view of a portfolio
type Summary struct {
	Overview      Overview                      `json:"overview"`
	Health        scoring.HealthScore           `json:"health"`
	Withdrawal    WithdrawalOverview            `json:"withdrawal"`
	Rebalancing   valuation.RebalancePlan       `json:"rebalancing"`
	Allocation    []valuation.AllocationItem    `json:"allocation"`
	Concentration *valuation.ConcentrationAlert `json:"concentration,omitempty"`
	Risk          valuation.RiskMetrics         `json:"risk"`
	TopHoldings   []valuation.Holding           `json:"top_holdings"`
}

// Summary assembles the dashboard view in one valuation pass
func (s *Service) Summary(ctx context.Context, userID string, riskScore float64) (Summary, error) {
	p, v, err := s.value(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	safe, err := s.planner.SafeWithdrawal(v.TotalValue, p.Settings.WithdrawalRate, v.YTDWithdrawn)
	if err != nil {
		return Summary{}, err
	}

	top := make([]valuation.Holding, len(v.Holdings))
	copy(top, v.Holdings)
	sort.SliceStable(top, func(i, j int) bool { return top[i].CurrentValue > top[j].CurrentValue })
	if len(top) > topHoldingsCount {
		top = top[:topHoldingsCount]
	}

	return Summary{
		Overview: Overview{
			BaseCurrency:      v.BaseCurrency,
			TotalValue:        v.TotalValue,
			TotalInvested:     v.TotalInvested,
			TotalPL:           v.TotalPL,
			TotalPLPercent:    v.TotalPLPercent,
			CashBalance:       v.CashBalance,
			HoldingsCount:     len(v.Holdings),
			StalePrices:       v.StalePrices,
			UnavailablePrices: v.UnavailablePrices,
		},
		Health: s.scorer.Score(v, riskScore),
		Withdrawal: WithdrawalOverview{
			Safe:  safe,
			Stats: ledger.New(p).WithdrawalStats(s.now(), v.TotalValue),
		},
		Rebalancing:   s.valuation.Rebalance(v, p.Settings.RebalanceThreshold),
		Allocation:    v.Allocation,
		Concentration: v.Concentration,
		Risk:          v.Risk,
		TopHoldings:   top,
	}, nil
}

// LiveSymbols returns the distinct quote-priced symbols held across the given users, sorted
func (s *Service) LiveSymbols(ctx context.Context, userIDs []string) ([]string, error) {
	seen := map[string]bool{}
	for _, id := range userIDs {
		p, err := s.Portfolio(ctx, id)
		if errors.Is(err, domain.ErrPortfolioNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, pos := range p.Positions {
			if s.valuation.UsesLiveQuotes(pos.Market) {
				seen[pos.Symbol] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}
