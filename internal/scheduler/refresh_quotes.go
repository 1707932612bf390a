package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PortfolioLister lists the users with a stored portfolio
type PortfolioLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SymbolCollector returns the quote-priced symbols held by the given users
type SymbolCollector interface {
	LiveSymbols(ctx context.Context, userIDs []string) ([]string, error)
}

// QuoteFetcher resolves prices for many symbols, omitting failures
type QuoteFetcher interface {
	GetPrices(ctx context.Context, symbols []string) map[string]float64
}

// RefreshQuotesJob keeps the quote cache warm for every held symbol so
// valuations rarely wait on the upstream provider.
type RefreshQuotesJob struct {
	users   PortfolioLister
	symbols SymbolCollector
	quotes  QuoteFetcher
	timeout time.Duration
	log     zerolog.Logger
}

// NewRefreshQuotesJob creates a new quote refresh job
func NewRefreshQuotesJob(users PortfolioLister, symbols SymbolCollector, quotes QuoteFetcher, log zerolog.Logger) *RefreshQuotesJob {
	return &RefreshQuotesJob{
		users:   users,
		symbols: symbols,
		quotes:  quotes,
		timeout: 2 * time.Minute,
		log:     log.With().Str("job", "refresh_quotes").Logger(),
	}
}

// Name returns the job name
func (j *RefreshQuotesJob) Name() string {
	return "refresh_quotes"
}

// Run executes the quote refresh job
func (j *RefreshQuotesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	ids, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}
	symbols, err := j.symbols.LiveSymbols(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to collect symbols: %w", err)
	}
	if len(symbols) == 0 {
		j.log.Debug().Msg("No symbols to refresh")
		return nil
	}

	prices := j.quotes.GetPrices(ctx, symbols)
	missing := make([]string, 0)
	for _, s := range symbols {
		if _, ok := prices[s]; !ok {
			missing = append(missing, s)
		}
	}

	event := j.log.Info()
	if len(missing) > 0 {
		event = j.log.Warn().Strs("missing", missing)
	}
	event.
		Int("portfolios", len(ids)).
		Int("symbols", len(symbols)).
		Int("priced", len(prices)).
		Msg("Quote refresh completed")
	return nil
}
