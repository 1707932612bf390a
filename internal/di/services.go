package di

import (
	"context"
	"fmt"

	"github.com/aristath/nestegg/internal/clientdata"
	"github.com/aristath/nestegg/internal/clients/quotes"
	"github.com/aristath/nestegg/internal/config"
	"github.com/aristath/nestegg/internal/database"
	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/events"
	"github.com/aristath/nestegg/internal/modules/portfolio"
	"github.com/aristath/nestegg/internal/modules/scoring"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/aristath/nestegg/internal/modules/valuation"
	"github.com/aristath/nestegg/internal/modules/withdrawal"
	"github.com/aristath/nestegg/internal/reliability"
	"github.com/aristath/nestegg/internal/services"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the data access layer
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())
	container.QuoteCache = clientdata.NewCache()
}

// InitializeServices creates the business logic layer
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Thresholds = cfg.Thresholds()

	// Live quotes are optional; without an upstream every market prices manually.
	var quoteProvider domain.QuoteProvider
	if cfg.QuoteAPIURL != "" {
		container.QuoteService = services.NewQuoteService(
			quotes.NewClient(cfg.QuoteAPIURL, log),
			container.QuoteCache,
			container.ClientDataRepo,
			cfg.QuoteTimeout,
			cfg.QuoteCacheTTL,
			log,
		)
		quoteProvider = container.QuoteService
	} else {
		log.Warn().Msg("QUOTE_API_URL not set, live quotes disabled")
	}

	container.ValuationEngine = valuation.NewEngine(
		quoteProvider,
		domain.DefaultMetadata(),
		container.Thresholds,
		cfg.ManualPriceMarkets,
		log,
	)
	container.HealthScorer = scoring.NewHealthScorer(container.Thresholds)
	container.WithdrawPlanner = withdrawal.NewPlanner(withdrawal.Config{
		Trials:    cfg.MonteCarlo.Trials,
		MaxTrials: cfg.MonteCarlo.MaxTrials,
		Seed:      cfg.MonteCarlo.Seed,
		Workers:   cfg.MonteCarlo.Workers,
	}, log)
	container.TaxCalculator = tax.NewCalculator(cfg.TaxJurisdiction)
	container.EventDetector = events.NewDetector(container.Thresholds, container.TaxCalculator, cfg.TaxJurisdiction, log)
	container.EventManager = events.NewManager(log)

	container.PortfolioService = portfolio.NewService(
		container.PortfolioRepo,
		container.ValuationEngine,
		container.HealthScorer,
		container.WithdrawPlanner,
		container.TaxCalculator,
		container.EventDetector,
		container.EventManager,
		log,
	)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewR2Client(context.Background(), reliability.R2Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		// The cache database is disposable and left out of backups.
		container.BackupService = reliability.NewBackupService(store, map[string]*database.DB{
			"portfolio": container.PortfolioDB,
		}, cfg.DataDir, log)
	}
	return nil
}
