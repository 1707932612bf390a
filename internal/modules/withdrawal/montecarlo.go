package withdrawal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/aristath/nestegg/internal/domain"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sustainability confidence levels
const (
	ConfidenceHigh     = "High"
	ConfidenceModerate = "Moderate"
	ConfidenceLow      = "Low"
)

// MonteCarloParams describes one simulation run. Zero fields fall back to the planner config.
type MonteCarloParams struct {
	StartingValue    float64  `json:"starting_value"`
	AnnualWithdrawal float64  `json:"annual_withdrawal"`
	Years            int      `json:"years"`
	Trials           int      `json:"trials"`
	MeanReturn       *float64 `json:"mean_return,omitempty"`
	StdDev           *float64 `json:"std_dev,omitempty"`
	Inflation        *float64 `json:"inflation,omitempty"`
	Seed             *uint64  `json:"seed,omitempty"`
}

// MonteCarloResult summarises the simulated final values
type MonteCarloResult struct {
	Trials           int     `json:"trials"`
	CompletedTrials  int     `json:"completed_trials"`
	Truncated        bool    `json:"truncated"`
	Seed             uint64  `json:"seed"`
	Years            int     `json:"years"`
	SuccessRate      float64 `json:"success_rate"`
	MedianFinalValue float64 `json:"median_final_value"`
	P10FinalValue    float64 `json:"p10_final_value"`
	P90FinalValue    float64 `json:"p90_final_value"`
	Recommendation   string  `json:"recommendation"`
	Confidence       string  `json:"confidence"`
}

type trialOutcome struct {
	survived   bool
	finalValue float64
	done       bool
}

type simulation struct {
	start, withdrawal    float64
	years                int
	mean, sigma, inflate float64
	seed                 uint64
}

// trial i draws from its own PCG stream keyed by (seed, i), so no generator is shared.
func (s simulation) run(i int) trialOutcome {
	returns := distuv.Normal{Mu: s.mean, Sigma: s.sigma, Src: rand.NewPCG(s.seed, uint64(i))}
	value := s.start
	wd := s.withdrawal
	for y := 0; y < s.years; y++ {
		value = value*(1+returns.Rand()) - wd
		wd *= 1 + s.inflate
		if value <= 0 {
			return trialOutcome{survived: false, finalValue: 0, done: true}
		}
	}
	return trialOutcome{survived: true, finalValue: value, done: true}
}

// MonteCarlo runs independent trials across a bounded worker pool. A caller
// deadline stops new trials; the result then covers the contiguous prefix of
// completed trials and is marked Truncated.
func (p *Planner) MonteCarlo(ctx context.Context, params MonteCarloParams) (MonteCarloResult, error) {
	sim, trials, err := p.prepare(params)
	if err != nil {
		return MonteCarloResult{}, err
	}

	outcomes := make([]trialOutcome, trials)
	workers := p.cfg.Workers
	if workers > trials {
		workers = trials
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if p.beforeTrial != nil {
					p.beforeTrial(i)
				}
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = sim.run(i)
			}
		}()
	}

feed:
	for i := 0; i < trials; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	completed := 0
	for completed < trials && outcomes[completed].done {
		completed++
	}
	if completed == 0 {
		return MonteCarloResult{}, fmt.Errorf("monte carlo stopped before any trial completed: %w", ctx.Err())
	}

	res := summarise(outcomes[:completed])
	res.Trials = trials
	res.CompletedTrials = completed
	res.Truncated = completed < trials
	res.Seed = sim.seed
	res.Years = sim.years
	if res.Truncated {
		p.log.Warn().
			Int("requested", trials).
			Int("completed", completed).
			Msg("Monte Carlo truncated by deadline")
	}
	return res, nil
}

func (p *Planner) prepare(params MonteCarloParams) (simulation, int, error) {
	if params.StartingValue <= 0 {
		return simulation{}, 0, domain.NewValidationError("starting_value", "must be positive", domain.ErrInvalidAmount)
	}
	if params.AnnualWithdrawal < 0 {
		return simulation{}, 0, domain.NewValidationError("annual_withdrawal", "must not be negative", domain.ErrInvalidAmount)
	}
	if params.Years < 0 {
		return simulation{}, 0, domain.NewValidationError("years", "must be positive", nil)
	}
	if params.Trials < 0 {
		return simulation{}, 0, domain.NewValidationError("trials", "must be positive", nil)
	}

	sim := simulation{
		start:      params.StartingValue,
		withdrawal: params.AnnualWithdrawal,
		years:      params.Years,
		mean:       p.cfg.MeanReturn,
		sigma:      p.cfg.StdDev,
		inflate:    *p.cfg.Inflation,
		seed:       p.cfg.Seed,
	}
	if sim.years == 0 {
		sim.years = p.cfg.Years
	}
	if params.MeanReturn != nil {
		sim.mean = *params.MeanReturn
	}
	if params.StdDev != nil {
		sim.sigma = *params.StdDev
	}
	if params.Inflation != nil {
		sim.inflate = *params.Inflation
	}
	if params.Seed != nil {
		sim.seed = *params.Seed
	}
	if sim.sigma < 0 {
		return simulation{}, 0, domain.NewValidationError("std_dev", "must not be negative", nil)
	}

	trials := params.Trials
	if trials == 0 {
		trials = p.cfg.Trials
	}
	if trials > p.cfg.MaxTrials {
		return simulation{}, 0, domain.NewValidationError("trials", fmt.Sprintf("must not exceed %d", p.cfg.MaxTrials), nil)
	}
	return sim, trials, nil
}

func summarise(outcomes []trialOutcome) MonteCarloResult {
	finals := make([]float64, len(outcomes))
	successes := 0
	for i, o := range outcomes {
		finals[i] = o.finalValue
		if o.survived {
			successes++
		}
	}
	sort.Float64s(finals)

	rate := float64(successes) / float64(len(outcomes)) * 100
	return MonteCarloResult{
		SuccessRate:      rate,
		MedianFinalValue: stat.Quantile(0.5, stat.Empirical, finals, nil),
		P10FinalValue:    stat.Quantile(0.1, stat.Empirical, finals, nil),
		P90FinalValue:    stat.Quantile(0.9, stat.Empirical, finals, nil),
		Recommendation:   recommendation(rate),
		Confidence:       confidence(rate),
	}
}

func recommendation(successRate float64) string {
	switch {
	case successRate >= 90:
		return "Excellent sustainability: portfolio very likely to last"
	case successRate >= 75:
		return "Good sustainability: portfolio likely to last with monitoring"
	case successRate >= 60:
		return "Moderate risk: consider reducing the withdrawal rate"
	default:
		return "High risk: withdrawal rate likely unsustainable"
	}
}

func confidence(successRate float64) string {
	switch {
	case successRate >= 85:
		return ConfidenceHigh
	case successRate >= 70:
		return ConfidenceModerate
	default:
		return ConfidenceLow
	}
}
