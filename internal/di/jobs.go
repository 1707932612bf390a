package di

import (
	"fmt"

	"github.com/aristath/nestegg/internal/clientdata"
	"github.com/aristath/nestegg/internal/config"
	"github.com/aristath/nestegg/internal/reliability"
	"github.com/aristath/nestegg/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the background jobs and schedules them
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{Scheduler: scheduler.New(log)}

	// Job 1: Cache cleanup
	instances.ClientDataCleanup = clientdata.NewCleanupJob(container.QuoteCache, container.ClientDataRepo, log)
	if err := instances.Scheduler.AddJob(cfg.CacheCleanupSchedule, instances.ClientDataCleanup); err != nil {
		return nil, err
	}

	// Job 2: Quote refresh (only with a live upstream)
	if container.QuoteService != nil {
		instances.RefreshQuotes = scheduler.NewRefreshQuotesJob(
			container.PortfolioRepo,
			container.PortfolioService,
			container.QuoteService,
			log,
		)
		if err := instances.Scheduler.AddJob(cfg.QuoteRefreshSchedule, instances.RefreshQuotes); err != nil {
			return nil, err
		}
	}

	// Job 3: WAL checkpoints
	instances.CheckWALCheckpoints = scheduler.NewCheckWALCheckpointsJob(container.Databases())
	instances.CheckWALCheckpoints.SetLogger(log)
	if err := instances.Scheduler.AddJob(cfg.DBMaintenanceSchedule, instances.CheckWALCheckpoints); err != nil {
		return nil, err
	}

	// Job 4: Integrity checks
	instances.CheckCoreDatabases = scheduler.NewCheckCoreDatabasesJob(container.Databases())
	instances.CheckCoreDatabases.SetLogger(log)
	if err := instances.Scheduler.AddJob(cfg.DBIntegritySchedule, instances.CheckCoreDatabases); err != nil {
		return nil, err
	}

	// Job 5: Disk space
	instances.CheckDiskSpace = reliability.NewCheckDiskSpaceJob(cfg.DataDir, uint64(cfg.MinFreeMB), log)
	if err := instances.Scheduler.AddJob(cfg.DBMaintenanceSchedule, instances.CheckDiskSpace); err != nil {
		return nil, err
	}

	// Job 6: Off-site backup (only with a bucket)
	if container.BackupService != nil {
		instances.LedgerBackup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		if err := instances.Scheduler.AddJob(cfg.Backup.Schedule, instances.LedgerBackup); err != nil {
			return nil, err
		}
	}

	log.Info().Msg("Jobs registered")
	return instances, nil
}
