package withdrawal

import (
	"context"
	"sync"
	"testing"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonteCarlo_DeterministicForSeed(t *testing.T) {
	params := MonteCarloParams{StartingValue: 500000, AnnualWithdrawal: 20000, Years: 30, Trials: 1000}

	a, err := newTestPlanner(t, Config{Seed: 2024, Workers: 8}).MonteCarlo(context.Background(), params)
	require.NoError(t, err)
	b, err := newTestPlanner(t, Config{Seed: 2024, Workers: 3}).MonteCarlo(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, a, b, "worker count must not change results")
	assert.False(t, a.Truncated)
	assert.Equal(t, 1000, a.CompletedTrials)
}

func TestMonteCarlo_FourPercentRuleSuccessBand(t *testing.T) {
	p := newTestPlanner(t, Config{Seed: 42})

	res, err := p.MonteCarlo(context.Background(), MonteCarloParams{StartingValue: 500000, AnnualWithdrawal: 20000, Years: 30, Trials: 1000})
	require.NoError(t, err)

	// N(7%, 15%) returns with 3% inflation put the true rate near 70%; the
	// band is several standard errors wide for 1000 trials.
	assert.GreaterOrEqual(t, res.SuccessRate, 62.0)
	assert.LessOrEqual(t, res.SuccessRate, 78.0)
	assert.LessOrEqual(t, res.P10FinalValue, res.MedianFinalValue)
	assert.LessOrEqual(t, res.MedianFinalValue, res.P90FinalValue)
	assert.NotEmpty(t, res.Recommendation)
}

func TestMonteCarlo_HigherWithdrawalNeverImprovesSuccess(t *testing.T) {
	p := newTestPlanner(t, Config{Seed: 99})

	prev := 101.0
	for _, wd := range []float64{5000, 15000, 20000, 30000, 45000} {
		res, err := p.MonteCarlo(context.Background(), MonteCarloParams{StartingValue: 500000, AnnualWithdrawal: wd, Years: 30, Trials: 500})
		require.NoError(t, err)
		assert.LessOrEqual(t, res.SuccessRate, prev, "withdrawal %.0f", wd)
		prev = res.SuccessRate
	}
}

func TestMonteCarlo_DeadlineTruncatesToCompletedPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestPlanner(t, Config{Seed: 5, Workers: 1})
	var once sync.Once
	p.beforeTrial = func(i int) {
		if i == 100 {
			once.Do(cancel)
		}
	}

	params := MonteCarloParams{StartingValue: 500000, AnnualWithdrawal: 20000, Years: 30, Trials: 1000}
	truncated, err := p.MonteCarlo(ctx, params)
	require.NoError(t, err)
	assert.True(t, truncated.Truncated)
	assert.Equal(t, 100, truncated.CompletedTrials)
	assert.Equal(t, 1000, truncated.Trials)

	params.Trials = 100
	full, err := newTestPlanner(t, Config{Seed: 5}).MonteCarlo(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, full.SuccessRate, truncated.SuccessRate)
	assert.Equal(t, full.MedianFinalValue, truncated.MedianFinalValue)
}

func TestMonteCarlo_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPlanner(t, Config{}).MonteCarlo(ctx, MonteCarloParams{StartingValue: 1000, AnnualWithdrawal: 40, Trials: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMonteCarlo_Validation(t *testing.T) {
	p := newTestPlanner(t, Config{MaxTrials: 5000})

	tests := []struct {
		name   string
		params MonteCarloParams
	}{
		{"zero value", MonteCarloParams{StartingValue: 0, AnnualWithdrawal: 10}},
		{"negative withdrawal", MonteCarloParams{StartingValue: 10, AnnualWithdrawal: -1}},
		{"negative years", MonteCarloParams{StartingValue: 10, Years: -3}},
		{"negative trials", MonteCarloParams{StartingValue: 10, Trials: -1}},
		{"too many trials", MonteCarloParams{StartingValue: 10, Trials: 5001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.MonteCarlo(context.Background(), tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestConfidenceAndRecommendationBands(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, confidence(85))
	assert.Equal(t, ConfidenceModerate, confidence(84.9))
	assert.Equal(t, ConfidenceModerate, confidence(70))
	assert.Equal(t, ConfidenceLow, confidence(69.9))

	assert.Contains(t, recommendation(90), "Excellent")
	assert.Contains(t, recommendation(75), "Good")
	assert.Contains(t, recommendation(60), "Moderate")
	assert.Contains(t, recommendation(59), "High risk")
}
