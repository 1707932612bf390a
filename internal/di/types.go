// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/nestegg/internal/clientdata"
	"github.com/aristath/nestegg/internal/database"
	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/events"
	"github.com/aristath/nestegg/internal/modules/portfolio"
	"github.com/aristath/nestegg/internal/modules/scoring"
	"github.com/aristath/nestegg/internal/modules/tax"
	"github.com/aristath/nestegg/internal/modules/valuation"
	"github.com/aristath/nestegg/internal/modules/withdrawal"
	"github.com/aristath/nestegg/internal/reliability"
	"github.com/aristath/nestegg/internal/scheduler"
	"github.com/aristath/nestegg/internal/services"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server and scheduler.
type Container struct {
	// Databases
	PortfolioDB *database.DB // Portfolio snapshots (ledger safety profile)
	CacheDB     *database.DB // Quote cache (speed profile)

	// Repositories
	PortfolioRepo  *portfolio.Repository
	ClientDataRepo *clientdata.Repository
	QuoteCache     *clientdata.Cache

	// Services
	QuoteService     *services.QuoteService // nil when no quote upstream is configured
	ValuationEngine  *valuation.Engine
	HealthScorer     *scoring.HealthScorer
	WithdrawPlanner  *withdrawal.Planner
	TaxCalculator    *tax.Calculator
	EventDetector    *events.Detector
	EventManager     *events.Manager
	PortfolioService *portfolio.Service
	BackupService    *reliability.BackupService // nil when no backup bucket is configured

	Thresholds domain.Thresholds
}

// JobInstances holds the scheduled background jobs
type JobInstances struct {
	Scheduler *scheduler.Scheduler

	ClientDataCleanup   *clientdata.CleanupJob
	RefreshQuotes       *scheduler.RefreshQuotesJob // nil without a quote upstream
	CheckWALCheckpoints *scheduler.CheckWALCheckpointsJob
	CheckCoreDatabases  *scheduler.CheckCoreDatabasesJob
	CheckDiskSpace      *reliability.CheckDiskSpaceJob
	LedgerBackup        *reliability.BackupJob // nil without a backup bucket
}

// Close closes every database held by the container
func (c *Container) Close() {
	for _, db := range []*database.DB{c.PortfolioDB, c.CacheDB} {
		if db != nil {
			db.Close()
		}
	}
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"portfolio": c.PortfolioDB,
		"cache":     c.CacheDB,
	}
}

// All returns the registered jobs keyed by name
func (j *JobInstances) All() map[string]scheduler.Job {
	out := map[string]scheduler.Job{}
	for _, job := range []scheduler.Job{j.ClientDataCleanup, j.CheckWALCheckpoints, j.CheckCoreDatabases, j.CheckDiskSpace} {
		out[job.Name()] = job
	}
	if j.RefreshQuotes != nil {
		out[j.RefreshQuotes.Name()] = j.RefreshQuotes
	}
	if j.LedgerBackup != nil {
		out[j.LedgerBackup.Name()] = j.LedgerBackup
	}
	return out
}
