package withdrawal

import (
	"fmt"

	"github.com/aristath/nestegg/internal/domain"
)

// ProjectionParams drives a deterministic year-by-year projection. Zero
// returns and inflation fall back to the planner's assumptions.
type ProjectionParams struct {
	StartingValue    float64  `json:"starting_value"`
	AnnualWithdrawal float64  `json:"annual_withdrawal"`
	Years            int      `json:"years"`
	ExpectedReturn   *float64 `json:"expected_return,omitempty"`
	Inflation        *float64 `json:"inflation,omitempty"`
}

// ProjectionYear is the state at the end of one projected year
type ProjectionYear struct {
	Year             int     `json:"year"`
	PortfolioValue   float64 `json:"portfolio_value"`
	WithdrawalAmount float64 `json:"withdrawal_amount"`
	Depleted         bool    `json:"depleted"`
}

// Projection is the outcome of a deterministic projection
type Projection struct {
	StartingValue     float64          `json:"starting_value"`
	InitialWithdrawal float64          `json:"initial_withdrawal"`
	YearsProjected    int              `json:"years_projected"`
	ExpectedReturn    float64          `json:"expected_return"`
	Inflation         float64          `json:"inflation"`
	Success           bool             `json:"success"`
	DepletionYear     *int             `json:"depletion_year,omitempty"`
	FinalValue        float64          `json:"final_value"`
	Years             []ProjectionYear `json:"years"`
}

// Project grows the portfolio at a fixed return, withdraws, and inflates the
// withdrawal each year, stopping at the first year the value reaches zero.
func (p *Planner) Project(params ProjectionParams) (Projection, error) {
	if params.Years == 0 {
		params.Years = p.cfg.Years
	}
	if params.Years < 0 {
		return Projection{}, domain.NewValidationError("years", "must be positive", nil)
	}
	if params.StartingValue <= 0 {
		return Projection{}, domain.NewValidationError("starting_value", "must be positive", domain.ErrInvalidAmount)
	}
	if params.AnnualWithdrawal < 0 {
		return Projection{}, domain.NewValidationError("annual_withdrawal", "must not be negative", domain.ErrInvalidAmount)
	}
	ret := p.cfg.MeanReturn
	if params.ExpectedReturn != nil {
		ret = *params.ExpectedReturn
	}
	infl := *p.cfg.Inflation
	if params.Inflation != nil {
		infl = *params.Inflation
	}
	if ret <= -1 {
		return Projection{}, domain.NewValidationError("expected_return", "must be greater than -100%", nil)
	}

	out := Projection{
		StartingValue:     params.StartingValue,
		InitialWithdrawal: params.AnnualWithdrawal,
		YearsProjected:    params.Years,
		ExpectedReturn:    ret,
		Inflation:         infl,
		Years:             make([]ProjectionYear, 0, params.Years),
	}

	value := params.StartingValue
	wd := params.AnnualWithdrawal
	for year := 1; year <= params.Years; year++ {
		value = value*(1+ret) - wd
		wd *= 1 + infl
		depleted := value <= 0
		out.Years = append(out.Years, ProjectionYear{
			Year:             year,
			PortfolioValue:   value,
			WithdrawalAmount: wd,
			Depleted:         depleted,
		})
		if depleted {
			y := year
			out.DepletionYear = &y
			break
		}
	}
	out.Success = out.DepletionYear == nil
	out.FinalValue = value
	return out, nil
}

// Sustainability verdicts for a shocked portfolio
const (
	VerdictSustainable   = "sustainable"
	VerdictRisky         = "risky"
	VerdictUnsustainable = "unsustainable"
)

// unboundedRate stands in for the withdrawal rate when a shock wipes the portfolio out.
const unboundedRate = 999.0

// Scenario is a named instantaneous market shock; Shock is fractional (-0.4 = -40%).
type Scenario struct {
	Name  string  `json:"name"`
	Shock float64 `json:"shock"`
}

// DefaultScenarios are the moderate, severe and extreme crash cases
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "Moderate Correction", Shock: -0.20},
		{Name: "Severe Crash", Shock: -0.40},
		{Name: "Extreme Crisis", Shock: -0.50},
	}
}

// ScenarioResult is the verdict for one shock
type ScenarioResult struct {
	Scenario                 string  `json:"scenario"`
	CrashPercent             float64 `json:"crash_percent"`
	PortfolioAfterCrash      float64 `json:"portfolio_after_crash"`
	WithdrawalRateAfterCrash float64 `json:"withdrawal_rate_after_crash"`
	Status                   string  `json:"status"`
	SuggestedWithdrawal      float64 `json:"suggested_withdrawal"`
	RecommendedAction        string  `json:"recommended_action"`
}

// StressTestResult collects the verdicts for every scenario
type StressTestResult struct {
	OriginalPortfolio float64          `json:"original_portfolio"`
	AnnualWithdrawal  float64          `json:"annual_withdrawal"`
	Scenarios         []ScenarioResult `json:"scenarios"`
}

// StressTest applies each shock and classifies the resulting withdrawal rate. Nil scenarios use DefaultScenarios.
func (p *Planner) StressTest(value, withdrawal float64, scenarios []Scenario) (StressTestResult, error) {
	if value <= 0 {
		return StressTestResult{}, domain.NewValidationError("portfolio_value", "must be positive", domain.ErrInvalidAmount)
	}
	if withdrawal < 0 {
		return StressTestResult{}, domain.NewValidationError("annual_withdrawal", "must not be negative", domain.ErrInvalidAmount)
	}
	if scenarios == nil {
		scenarios = DefaultScenarios()
	}

	out := StressTestResult{
		OriginalPortfolio: value,
		AnnualWithdrawal:  withdrawal,
		Scenarios:         make([]ScenarioResult, 0, len(scenarios)),
	}
	for _, sc := range scenarios {
		shocked := value * (1 + sc.Shock)
		rate := unboundedRate
		if shocked > 0 {
			rate = withdrawal / shocked
		}
		suggested := shocked * 0.04
		if suggested < 0 {
			suggested = 0
		}

		r := ScenarioResult{
			Scenario:                 sc.Name,
			CrashPercent:             sc.Shock * 100,
			PortfolioAfterCrash:      shocked,
			WithdrawalRateAfterCrash: rate * 100,
			SuggestedWithdrawal:      suggested,
		}
		switch {
		case rate > 0.06:
			r.Status = VerdictUnsustainable
			r.RecommendedAction = fmt.Sprintf("Reduce to %.0f/year or pause withdrawals temporarily", suggested)
		case rate > 0.05:
			r.Status = VerdictRisky
			r.RecommendedAction = fmt.Sprintf("Consider reducing to %.0f/year", suggested)
		default:
			r.Status = VerdictSustainable
			r.RecommendedAction = "Continue current withdrawal rate"
		}
		out.Scenarios = append(out.Scenarios, r)
	}
	return out, nil
}
