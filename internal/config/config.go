// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	QuoteAPIURL   string // Upstream quote endpoint; empty disables live quotes
	QuoteTimeout  time.Duration
	QuoteCacheTTL time.Duration

	MonteCarlo MonteCarloConfig

	TaxJurisdiction       string
	ManualPriceMarkets    []string
	ConcentrationLimitPct float64

	CacheCleanupSchedule  string
	QuoteRefreshSchedule  string
	DBMaintenanceSchedule string
	DBIntegritySchedule   string

	Backup    BackupConfig
	MinFreeMB int
}

// BackupConfig holds off-site backup settings. Backups are off without a bucket.
type BackupConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
	RetentionDays   int
}

// Enabled reports whether a backup bucket is configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// MonteCarloConfig holds simulation defaults
type MonteCarloConfig struct {
	Trials    int
	MaxTrials int
	Seed      uint64 // Derived from the clock when MONTE_CARLO_SEED is unset or 0
	Workers   int    // 0 means one per CPU
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("NESTEGG_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	seed := uint64(getEnvAsInt64("MONTE_CARLO_SEED", 0))
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		QuoteAPIURL:   getEnv("QUOTE_API_URL", ""),
		QuoteTimeout:  time.Duration(getEnvAsInt("QUOTE_TIMEOUT_MS", 2000)) * time.Millisecond,
		QuoteCacheTTL: time.Duration(getEnvAsInt("QUOTE_CACHE_TTL_SECONDS", 600)) * time.Second,

		MonteCarlo: MonteCarloConfig{
			Trials:    getEnvAsInt("MONTE_CARLO_TRIALS", 1000),
			MaxTrials: getEnvAsInt("MONTE_CARLO_MAX_TRIALS", 20000),
			Seed:      seed,
			Workers:   getEnvAsInt("MONTE_CARLO_WORKERS", 0),
		},

		TaxJurisdiction:       strings.ToLower(getEnv("TAX_JURISDICTION", tax.Kenya)),
		ManualPriceMarkets:    getEnvAsList("MANUAL_PRICE_MARKETS", []string{"NSE"}),
		ConcentrationLimitPct: getEnvAsFloat("CONCENTRATION_LIMIT_PCT", domain.DefaultThresholds().ConcentrationLimitPct),

		CacheCleanupSchedule:  getEnv("CACHE_CLEANUP_SCHEDULE", "@every 10m"),
		QuoteRefreshSchedule:  getEnv("QUOTE_REFRESH_SCHEDULE", "@every 5m"),
		DBMaintenanceSchedule: getEnv("DB_MAINTENANCE_SCHEDULE", "@hourly"),
		DBIntegritySchedule:   getEnv("DB_INTEGRITY_SCHEDULE", "@daily"),

		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
		MinFreeMB: getEnvAsInt("MIN_FREE_DISK_MB", 500),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.QuoteTimeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT_MS must be positive")
	}
	if c.QuoteCacheTTL <= 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL_SECONDS must be positive")
	}
	if c.MonteCarlo.Trials <= 0 {
		return fmt.Errorf("MONTE_CARLO_TRIALS must be positive, got %d", c.MonteCarlo.Trials)
	}
	if c.MonteCarlo.MaxTrials < c.MonteCarlo.Trials {
		return fmt.Errorf("MONTE_CARLO_MAX_TRIALS (%d) must be at least MONTE_CARLO_TRIALS (%d)",
			c.MonteCarlo.MaxTrials, c.MonteCarlo.Trials)
	}
	if c.MonteCarlo.Workers < 0 {
		return fmt.Errorf("MONTE_CARLO_WORKERS must not be negative")
	}
	if _, ok := tax.DefaultRegimes()[c.TaxJurisdiction]; !ok {
		return fmt.Errorf("unknown TAX_JURISDICTION %q", c.TaxJurisdiction)
	}
	if c.ConcentrationLimitPct <= 0 || c.ConcentrationLimitPct > 100 {
		return fmt.Errorf("CONCENTRATION_LIMIT_PCT must be in (0, 100], got %v", c.ConcentrationLimitPct)
	}

	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative")
	}
	if c.MinFreeMB < 0 {
		return fmt.Errorf("MIN_FREE_DISK_MB must not be negative")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"CACHE_CLEANUP_SCHEDULE":  c.CacheCleanupSchedule,
		"QUOTE_REFRESH_SCHEDULE":  c.QuoteRefreshSchedule,
		"DB_MAINTENANCE_SCHEDULE": c.DBMaintenanceSchedule,
		"DB_INTEGRITY_SCHEDULE":   c.DBIntegritySchedule,
		"BACKUP_SCHEDULE":         c.Backup.Schedule,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	return nil
}

// Thresholds returns the shared rule table with environment overrides applied
func (c *Config) Thresholds() domain.Thresholds {
	t := domain.DefaultThresholds()
	t.ConcentrationLimitPct = c.ConcentrationLimitPct
	return t
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, upper-casing each item
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToUpper(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
