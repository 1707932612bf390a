package di

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/nestegg/internal/config"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:            t.TempDir(),
		Port:               8001,
		QuoteTimeout:       time.Second,
		QuoteCacheTTL:      time.Minute,
		MonteCarlo:         config.MonteCarloConfig{Trials: 50, MaxTrials: 100, Seed: 3, Workers: 1},
		TaxJurisdiction:    "kenya",
		ManualPriceMarkets: []string{"NSE"},

		ConcentrationLimitPct: 60,
		CacheCleanupSchedule:  "@every 10m",
		QuoteRefreshSchedule:  "@every 5m",
		DBMaintenanceSchedule: "@hourly",
		DBIntegritySchedule:   "@daily",
		Backup:                config.BackupConfig{Schedule: "0 0 3 * * *", RetentionDays: 30},
	}
}

func TestWire(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.PortfolioDB)
	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.ValuationEngine)
	assert.Nil(t, container.QuoteService, "no upstream configured")

	assert.NotNil(t, jobs.Scheduler)
	assert.NotNil(t, jobs.ClientDataCleanup)
	assert.NotNil(t, jobs.CheckWALCheckpoints)
	assert.NotNil(t, jobs.CheckCoreDatabases)
	assert.NotNil(t, jobs.CheckDiskSpace)
	assert.Nil(t, jobs.RefreshQuotes)
	assert.Nil(t, container.BackupService)
	assert.Nil(t, jobs.LedgerBackup)
}

func TestWire_WithBackupBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Bucket = "ledger-backups"
	cfg.Backup.Endpoint = "http://127.0.0.1:9000"
	cfg.Backup.AccessKeyID = "key"
	cfg.Backup.SecretAccessKey = "secret"

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.BackupService)
	assert.NotNil(t, jobs.LedgerBackup)
	assert.Contains(t, jobs.All(), "ledger_backup")
}

func TestWire_WithQuoteUpstream(t *testing.T) {
	cfg := testConfig(t)
	cfg.QuoteAPIURL = "http://127.0.0.1:1"

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.QuoteService)
	assert.NotNil(t, jobs.RefreshQuotes)
}

func TestWire_ServicePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	_, err = container.PortfolioService.Deposit(ctx, "alice", decimal.NewFromInt(500), time.Now())
	require.NoError(t, err)
	container.Close()

	reopened, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(reopened.Close)

	p, err := reopened.PortfolioService.Portfolio(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(decimal.NewFromInt(500)))
}

func TestWire_JobsRun(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NoError(t, jobs.ClientDataCleanup.Run())
	assert.NoError(t, jobs.CheckWALCheckpoints.Run())
	assert.NoError(t, jobs.CheckCoreDatabases.Run())
}

func TestRegisterJobs_NilContainer(t *testing.T) {
	_, err := RegisterJobs(nil, testConfig(t), zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_BadSchedule(t *testing.T) {
	cfg := testConfig(t)
	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)
	InitializeRepositories(container, zerolog.Nop())
	require.NoError(t, InitializeServices(container, cfg, zerolog.Nop()))

	cfg.CacheCleanupSchedule = "not a schedule"
	_, err = RegisterJobs(container, cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestJobInstances_All(t *testing.T) {
	container, jobs, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	all := jobs.All()
	assert.Len(t, all, 4)
	assert.Contains(t, all, "client_data_cleanup")
	assert.Contains(t, all, "check_wal_checkpoints")
	assert.Contains(t, all, "check_core_databases")
	assert.Contains(t, all, "check_disk_space")
}
