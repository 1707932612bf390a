package withdrawal

import (
	"context"
	"testing"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(t *testing.T, cfg Config) *Planner {
	t.Helper()
	return NewPlanner(cfg, zerolog.Nop())
}

func TestBasic(t *testing.T) {
	p := newTestPlanner(t, Config{})

	res, err := p.Basic(500000, 0.04)
	require.NoError(t, err)
	assert.InDelta(t, 20000, res.Annual, 1e-9)
	assert.InDelta(t, 20000.0/12, res.Monthly, 1e-9)
	assert.InDelta(t, 20000.0/52, res.Weekly, 1e-9)

	_, err = p.Basic(500000, 0)
	assert.True(t, domain.IsValidation(err))
	_, err = p.Basic(-1, 0.04)
	assert.True(t, domain.IsValidation(err))
}

func TestGuardrails(t *testing.T) {
	p := newTestPlanner(t, Config{})

	tests := []struct {
		name    string
		current float64
		status  string
		rate    float64
	}{
		{"up 25%", 625000, StatusIncreaseAllowed, 0.045},
		{"up exactly 20%", 600000, StatusOnTrack, 0.04},
		{"down 10%", 450000, StatusOnTrack, 0.04},
		{"down exactly 15%", 425000, StatusOnTrack, 0.04},
		{"down 20%", 400000, StatusDecreaseRecommended, 0.035},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Guardrails(tt.current, 500000, 20000)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.InDelta(t, tt.rate, res.RecommendedRate, 1e-12)
			assert.InDelta(t, tt.current*tt.rate, res.RecommendedAnnual, 1e-6)
		})
	}

	_, err := p.Guardrails(100, 0, 4)
	assert.True(t, domain.IsValidation(err))
}

func TestSafeWithdrawal(t *testing.T) {
	p := newTestPlanner(t, Config{})

	res, err := p.SafeWithdrawal(100000, 0.04, 1500)
	require.NoError(t, err)
	assert.InDelta(t, 4000, res.SafeAnnual, 1e-9)
	assert.InDelta(t, 2500, res.RemainingThisYear, 1e-9)
	assert.InDelta(t, 2400, res.FloorWithdrawal, 1e-9)
	assert.InDelta(t, 5400, res.CeilingWithdrawal, 1e-9)
	assert.True(t, res.CurrentIsSafe)
}

func TestRequiredPortfolio(t *testing.T) {
	p := newTestPlanner(t, Config{})

	res, err := p.RequiredPortfolio(40000, 0.04)
	require.NoError(t, err)
	assert.InDelta(t, 1000000, res.RequiredPortfolio, 1e-6)
	assert.InDelta(t, 40000/0.03, res.Scenarios["conservative_3pct"], 1e-6)
	assert.InDelta(t, 800000, res.Scenarios["aggressive_5pct"], 1e-6)

	_, err = p.RequiredPortfolio(0, 0.04)
	assert.True(t, domain.IsValidation(err))
}

func TestNewPlannerKeepsZeroInflation(t *testing.T) {
	assert.InDelta(t, 0.03, *newTestPlanner(t, Config{}).Config().Inflation, 1e-12)

	zero := 0.0
	p := newTestPlanner(t, Config{Inflation: &zero})
	assert.Equal(t, 0.0, *p.Config().Inflation)

	zero = 0.5
	assert.Equal(t, 0.0, *p.Config().Inflation)

	ret := 0.0
	proj, err := p.Project(ProjectionParams{StartingValue: 1000, AnnualWithdrawal: 100, Years: 3, ExpectedReturn: &ret})
	require.NoError(t, err)
	assert.Equal(t, 0.0, proj.Inflation)
	require.Len(t, proj.Years, 3)
	assert.InDelta(t, 700.0, proj.FinalValue, 1e-9)
}

func TestProject(t *testing.T) {
	p := newTestPlanner(t, Config{})
	zero := 0.0

	flat, err := p.Project(ProjectionParams{StartingValue: 1000, AnnualWithdrawal: 100, Years: 30, ExpectedReturn: &zero, Inflation: &zero})
	require.NoError(t, err)
	assert.False(t, flat.Success)
	require.NotNil(t, flat.DepletionYear)
	assert.Equal(t, 10, *flat.DepletionYear)
	assert.Len(t, flat.Years, 10)
	assert.True(t, flat.Years[9].Depleted)

	ret := 0.07
	healthy, err := p.Project(ProjectionParams{StartingValue: 500000, AnnualWithdrawal: 20000, Years: 30, ExpectedReturn: &ret})
	require.NoError(t, err)
	assert.True(t, healthy.Success)
	assert.Nil(t, healthy.DepletionYear)
	assert.Len(t, healthy.Years, 30)
	assert.Greater(t, healthy.FinalValue, 0.0)

	_, err = p.Project(ProjectionParams{StartingValue: 1000, Years: -1})
	assert.True(t, domain.IsValidation(err))
}

func TestStressTest(t *testing.T) {
	p := newTestPlanner(t, Config{})

	res, err := p.StressTest(500000, 20000, nil)
	require.NoError(t, err)
	require.Len(t, res.Scenarios, 3)

	// 20000 over 400k, 300k and 250k
	assert.Equal(t, VerdictSustainable, res.Scenarios[0].Status)
	assert.Equal(t, VerdictUnsustainable, res.Scenarios[1].Status)
	assert.Equal(t, VerdictUnsustainable, res.Scenarios[2].Status)
	assert.InDelta(t, 10000, res.Scenarios[2].SuggestedWithdrawal, 1e-6)
	assert.InDelta(t, -40, res.Scenarios[1].CrashPercent, 1e-9)

	risky, err := p.StressTest(100000, 2750, []Scenario{{Name: "dip", Shock: -0.5}})
	require.NoError(t, err)
	assert.Equal(t, VerdictRisky, risky.Scenarios[0].Status)

	wiped, err := p.StressTest(100000, 1000, []Scenario{{Name: "wipeout", Shock: -1}})
	require.NoError(t, err)
	assert.Equal(t, VerdictUnsustainable, wiped.Scenarios[0].Status)
	assert.Zero(t, wiped.Scenarios[0].SuggestedWithdrawal)
}

func TestPlan(t *testing.T) {
	p := newTestPlanner(t, Config{Trials: 200, Seed: 7})

	plan, err := p.Plan(context.Background(), 500000, 400000, 5000)
	require.NoError(t, err)
	assert.InDelta(t, 20000, plan.SafeWithdrawal.SafeAnnual, 1e-9)
	assert.Equal(t, StatusIncreaseAllowed, plan.Guardrails.Status)
	assert.Equal(t, 200, plan.MonteCarlo.CompletedTrials)
	assert.Len(t, plan.StressTest.Scenarios, 3)

	_, err = p.Plan(context.Background(), 0, 0, 0)
	assert.True(t, domain.IsValidation(err))
}
