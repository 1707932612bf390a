// Package withdrawal plans sustainable withdrawals: the 4% rule, guardrails,
// deterministic projections, Monte Carlo simulation and crash stress tests.
package withdrawal

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/rs/zerolog"
)

// Guardrail statuses
const (
	StatusIncreaseAllowed     = "increase_allowed"
	StatusDecreaseRecommended = "decrease_recommended"
	StatusOnTrack             = "on_track"
)

// Config holds the planner's market assumptions and simulation limits
type Config struct {
	WithdrawalRate float64
	Years          int
	MeanReturn     float64
	StdDev         float64
	Inflation      *float64 // nil means DefaultConfig's 3%
	Trials         int
	MaxTrials      int
	Workers        int
	Seed           uint64

	GuardrailCeiling float64 // fractional gain above initial that allows an increase
	GuardrailFloor   float64 // fractional loss below initial that calls for a decrease
	IncreasedRate    float64
	DecreasedRate    float64
}

// DefaultConfig returns the standard assumptions: 4% rule, 30 years, N(7%, 15%), 3% inflation.
func DefaultConfig() Config {
	return Config{
		WithdrawalRate:   0.04,
		Years:            30,
		MeanReturn:       0.07,
		StdDev:           0.15,
		Inflation:        floatPtr(0.03),
		Trials:           1000,
		MaxTrials:        20000,
		Workers:          runtime.NumCPU(),
		Seed:             42,
		GuardrailCeiling: 0.20,
		GuardrailFloor:   0.15,
		IncreasedRate:    0.045,
		DecreasedRate:    0.035,
	}
}

// Planner computes withdrawal plans. It holds no mutable state and is safe for concurrent use.
type Planner struct {
	cfg Config
	log zerolog.Logger

	// beforeTrial runs ahead of every Monte Carlo trial; tests use it to cancel mid-run.
	beforeTrial func(trial int)
}

// NewPlanner creates a planner, filling zero-valued config fields from DefaultConfig.
func NewPlanner(cfg Config, log zerolog.Logger) *Planner {
	def := DefaultConfig()
	if cfg.WithdrawalRate <= 0 {
		cfg.WithdrawalRate = def.WithdrawalRate
	}
	if cfg.Years <= 0 {
		cfg.Years = def.Years
	}
	if cfg.MeanReturn == 0 && cfg.StdDev == 0 {
		cfg.MeanReturn = def.MeanReturn
		cfg.StdDev = def.StdDev
	}
	if cfg.Inflation == nil {
		cfg.Inflation = def.Inflation
	} else {
		cfg.Inflation = floatPtr(*cfg.Inflation)
	}
	if cfg.Trials <= 0 {
		cfg.Trials = def.Trials
	}
	if cfg.MaxTrials <= 0 {
		cfg.MaxTrials = def.MaxTrials
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.GuardrailCeiling <= 0 {
		cfg.GuardrailCeiling = def.GuardrailCeiling
	}
	if cfg.GuardrailFloor <= 0 {
		cfg.GuardrailFloor = def.GuardrailFloor
	}
	if cfg.IncreasedRate <= 0 {
		cfg.IncreasedRate = def.IncreasedRate
	}
	if cfg.DecreasedRate <= 0 {
		cfg.DecreasedRate = def.DecreasedRate
	}
	return &Planner{
		cfg: cfg,
		log: log.With().Str("service", "withdrawal_planner").Logger(),
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

// Config returns the planner's effective configuration
func (p *Planner) Config() Config {
	c := p.cfg
	c.Inflation = floatPtr(*p.cfg.Inflation)
	return c
}

// BasicWithdrawal is the static-rate split of an annual withdrawal
type BasicWithdrawal struct {
	PortfolioValue float64 `json:"portfolio_value"`
	WithdrawalRate float64 `json:"withdrawal_rate"`
	Annual         float64 `json:"annual"`
	Monthly        float64 `json:"monthly"`
	Weekly         float64 `json:"weekly"`
}

// Basic applies a fixed withdrawal rate to the portfolio value
func (p *Planner) Basic(value, rate float64) (BasicWithdrawal, error) {
	if value < 0 || math.IsNaN(value) {
		return BasicWithdrawal{}, domain.NewValidationError("portfolio_value", "must not be negative", domain.ErrInvalidAmount)
	}
	if err := validateRate(rate); err != nil {
		return BasicWithdrawal{}, err
	}
	annual := value * rate
	return BasicWithdrawal{
		PortfolioValue: value,
		WithdrawalRate: rate,
		Annual:         annual,
		Monthly:        annual / 12,
		Weekly:         annual / 52,
	}, nil
}

// GuardrailResult is the guardrail recommendation for the current value
type GuardrailResult struct {
	CurrentValue       float64 `json:"current_value"`
	InitialValue       float64 `json:"initial_value"`
	ChangePercent      float64 `json:"change_percent"`
	Status             string  `json:"status"`
	RecommendedRate    float64 `json:"recommended_rate"`
	RecommendedAnnual  float64 `json:"recommended_annual"`
	RecommendedMonthly float64 `json:"recommended_monthly"`
	BaseWithdrawal     float64 `json:"base_withdrawal"`
	Message            string  `json:"message"`
}

// Guardrails compares the current value with the initial reference and moves the rate within a two-sided band.
func (p *Planner) Guardrails(current, initial, base float64) (GuardrailResult, error) {
	if initial <= 0 {
		return GuardrailResult{}, domain.NewValidationError("initial_value", "must be positive", domain.ErrInvalidAmount)
	}
	if current < 0 {
		return GuardrailResult{}, domain.NewValidationError("current_value", "must not be negative", domain.ErrInvalidAmount)
	}

	change := (current - initial) / initial
	res := GuardrailResult{
		CurrentValue:   current,
		InitialValue:   initial,
		ChangePercent:  change * 100,
		BaseWithdrawal: base,
	}
	switch {
	case change > p.cfg.GuardrailCeiling:
		res.Status = StatusIncreaseAllowed
		res.RecommendedRate = p.cfg.IncreasedRate
		res.Message = fmt.Sprintf("Portfolio up %.1f%%, withdrawal can safely rise to %.1f%%", change*100, p.cfg.IncreasedRate*100)
	case change < -p.cfg.GuardrailFloor:
		res.Status = StatusDecreaseRecommended
		res.RecommendedRate = p.cfg.DecreasedRate
		res.Message = fmt.Sprintf("Portfolio down %.1f%%, reduce withdrawal to %.1f%%", -change*100, p.cfg.DecreasedRate*100)
	default:
		res.Status = StatusOnTrack
		res.RecommendedRate = p.cfg.WithdrawalRate
		res.Message = fmt.Sprintf("Portfolio stable, maintain %.1f%% withdrawal rate", p.cfg.WithdrawalRate*100)
	}
	res.RecommendedAnnual = current * res.RecommendedRate
	res.RecommendedMonthly = res.RecommendedAnnual / 12
	return res, nil
}

// SafeWithdrawalResult is this year's safe withdrawal budget
type SafeWithdrawalResult struct {
	PortfolioValue    float64 `json:"portfolio_value"`
	WithdrawalRate    float64 `json:"withdrawal_rate"`
	SafeAnnual        float64 `json:"safe_annual"`
	SafeMonthly       float64 `json:"safe_monthly"`
	YTDWithdrawn      float64 `json:"ytd_withdrawn"`
	RemainingThisYear float64 `json:"remaining_this_year"`
	FloorWithdrawal   float64 `json:"floor_withdrawal"`
	CeilingWithdrawal float64 `json:"ceiling_withdrawal"`
	CurrentIsSafe     bool    `json:"current_is_safe"`
}

// SafeWithdrawal computes the annual budget and its floor/ceiling at a 20% swing either way.
func (p *Planner) SafeWithdrawal(value, rate, ytdWithdrawn float64) (SafeWithdrawalResult, error) {
	if rate == 0 {
		rate = p.cfg.WithdrawalRate
	}
	basic, err := p.Basic(value, rate)
	if err != nil {
		return SafeWithdrawalResult{}, err
	}
	if ytdWithdrawn < 0 {
		return SafeWithdrawalResult{}, domain.NewValidationError("ytd_withdrawn", "must not be negative", domain.ErrInvalidAmount)
	}
	floor := value * 0.8 * 0.03
	ceiling := value * 1.2 * 0.045
	return SafeWithdrawalResult{
		PortfolioValue:    value,
		WithdrawalRate:    rate,
		SafeAnnual:        basic.Annual,
		SafeMonthly:       basic.Monthly,
		YTDWithdrawn:      ytdWithdrawn,
		RemainingThisYear: basic.Annual - ytdWithdrawn,
		FloorWithdrawal:   floor,
		CeilingWithdrawal: ceiling,
		CurrentIsSafe:     basic.Annual >= floor,
	}, nil
}

// RequiredPortfolioResult sizes a portfolio for a desired income
type RequiredPortfolioResult struct {
	DesiredAnnualIncome float64            `json:"desired_annual_income"`
	WithdrawalRate      float64            `json:"withdrawal_rate"`
	RequiredPortfolio   float64            `json:"required_portfolio"`
	MonthlyIncome       float64            `json:"monthly_income"`
	Scenarios           map[string]float64 `json:"scenarios"`
}

// RequiredPortfolio returns the portfolio needed to fund income at rate, plus 3/4/5% comparisons.
func (p *Planner) RequiredPortfolio(income, rate float64) (RequiredPortfolioResult, error) {
	if income <= 0 {
		return RequiredPortfolioResult{}, domain.NewValidationError("desired_annual_income", "must be positive", domain.ErrInvalidAmount)
	}
	if rate == 0 {
		rate = p.cfg.WithdrawalRate
	}
	if err := validateRate(rate); err != nil {
		return RequiredPortfolioResult{}, err
	}
	return RequiredPortfolioResult{
		DesiredAnnualIncome: income,
		WithdrawalRate:      rate,
		RequiredPortfolio:   income / rate,
		MonthlyIncome:       income / 12,
		Scenarios: map[string]float64{
			"conservative_3pct": income / 0.03,
			"standard_4pct":     income / 0.04,
			"aggressive_5pct":   income / 0.05,
		},
	}, nil
}

// Plan is the combined withdrawal plan for a portfolio
type Plan struct {
	SafeWithdrawal SafeWithdrawalResult `json:"safe_withdrawal"`
	Guardrails     GuardrailResult      `json:"guardrails"`
	MonteCarlo     MonteCarloResult     `json:"monte_carlo"`
	StressTest     StressTestResult     `json:"stress_test"`
}

// Plan builds the full withdrawal plan at the configured rate. A non-positive
// initialValue means the current value is the reference.
func (p *Planner) Plan(ctx context.Context, value, initialValue, ytdWithdrawn float64) (Plan, error) {
	return p.PlanAtRate(ctx, value, initialValue, ytdWithdrawn, p.cfg.WithdrawalRate)
}

// PlanAtRate is Plan with an explicit base withdrawal rate; zero uses the configured rate.
func (p *Planner) PlanAtRate(ctx context.Context, value, initialValue, ytdWithdrawn, rate float64) (Plan, error) {
	if value <= 0 {
		return Plan{}, domain.NewValidationError("portfolio_value", "must be positive to plan withdrawals", domain.ErrInvalidAmount)
	}
	if initialValue <= 0 {
		initialValue = value
	}

	safe, err := p.SafeWithdrawal(value, rate, ytdWithdrawn)
	if err != nil {
		return Plan{}, err
	}
	guard, err := p.Guardrails(value, initialValue, safe.SafeAnnual)
	if err != nil {
		return Plan{}, err
	}
	mc, err := p.MonteCarlo(ctx, MonteCarloParams{
		StartingValue:    value,
		AnnualWithdrawal: safe.SafeAnnual,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("failed to run monte carlo: %w", err)
	}
	stress, err := p.StressTest(value, safe.SafeAnnual, nil)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		SafeWithdrawal: safe,
		Guardrails:     guard,
		MonteCarlo:     mc,
		StressTest:     stress,
	}, nil
}

func validateRate(rate float64) error {
	if rate <= 0 || rate > 1 || math.IsNaN(rate) {
		return domain.NewValidationError("withdrawal_rate", "must be in (0, 1]", nil)
	}
	return nil
}
