package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NESTEGG_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 2*time.Second, cfg.QuoteTimeout)
	assert.Equal(t, 10*time.Minute, cfg.QuoteCacheTTL)
	assert.Equal(t, 1000, cfg.MonteCarlo.Trials)
	assert.Equal(t, 20000, cfg.MonteCarlo.MaxTrials)
	assert.NotZero(t, cfg.MonteCarlo.Seed, "an unset seed is derived from the clock")
	assert.Equal(t, "kenya", cfg.TaxJurisdiction)
	assert.Equal(t, []string{"NSE"}, cfg.ManualPriceMarkets)
	assert.Equal(t, 60.0, cfg.ConcentrationLimitPct)
	assert.Equal(t, "@every 10m", cfg.CacheCleanupSchedule)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, "auto", cfg.Backup.Region)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
	assert.Equal(t, 500, cfg.MinFreeMB)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NESTEGG_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("QUOTE_TIMEOUT_MS", "500")
	t.Setenv("MONTE_CARLO_TRIALS", "250")
	t.Setenv("MONTE_CARLO_SEED", "7")
	t.Setenv("TAX_JURISDICTION", "US")
	t.Setenv("MANUAL_PRICE_MARKETS", "nse, use ,")
	t.Setenv("CONCENTRATION_LIMIT_PCT", "45")
	t.Setenv("BACKUP_BUCKET", "ledger-backups")
	t.Setenv("BACKUP_RETENTION_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 500*time.Millisecond, cfg.QuoteTimeout)
	assert.Equal(t, 250, cfg.MonteCarlo.Trials)
	assert.Equal(t, uint64(7), cfg.MonteCarlo.Seed)
	assert.Equal(t, "us", cfg.TaxJurisdiction)
	assert.Equal(t, []string{"NSE", "USE"}, cfg.ManualPriceMarkets)
	assert.Equal(t, 45.0, cfg.Thresholds().ConcentrationLimitPct)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "GO_PORT", "70000"},
		{"trials above max", "MONTE_CARLO_TRIALS", "50000"},
		{"jurisdiction", "TAX_JURISDICTION", "atlantis"},
		{"concentration", "CONCENTRATION_LIMIT_PCT", "150"},
		{"schedule", "CACHE_CLEANUP_SCHEDULE", "whenever"},
		{"quote timeout", "QUOTE_TIMEOUT_MS", "-1"},
		{"backup schedule", "BACKUP_SCHEDULE", "nightly"},
		{"retention", "BACKUP_RETENTION_DAYS", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NESTEGG_DATA_DIR", t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
