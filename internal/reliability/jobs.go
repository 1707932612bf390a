package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// BackupJob uploads a fresh archive and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		timeout:       10 * time.Minute,
		log:           log.With().Str("job", "ledger_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "ledger_backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	// A failed rotation leaves extra archives behind; the backup itself succeeded.
	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// CheckDiskSpaceJob fails when the data directory's filesystem runs low
type CheckDiskSpaceJob struct {
	dataDir   string
	minFreeMB uint64
	log       zerolog.Logger
}

// NewCheckDiskSpaceJob creates a new disk space check job
func NewCheckDiskSpaceJob(dataDir string, minFreeMB uint64, log zerolog.Logger) *CheckDiskSpaceJob {
	return &CheckDiskSpaceJob{
		dataDir:   dataDir,
		minFreeMB: minFreeMB,
		log:       log.With().Str("job", "check_disk_space").Logger(),
	}
}

// Name returns the job name
func (j *CheckDiskSpaceJob) Name() string {
	return "check_disk_space"
}

// Run executes the disk space check
func (j *CheckDiskSpaceJob) Run() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	freeMB := usage.Free / 1024 / 1024
	j.log.Debug().
		Uint64("free_mb", freeMB).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if freeMB < j.minFreeMB {
		j.log.Error().Uint64("free_mb", freeMB).Msg("Insufficient disk space")
		return fmt.Errorf("only %d MB free on %s, need %d MB", freeMB, j.dataDir, j.minFreeMB)
	}
	if freeMB < j.minFreeMB*10 {
		j.log.Warn().Uint64("free_mb", freeMB).Msg("Disk space running low")
	}
	return nil
}
