package clientdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from the memory cache and every cache table.
type CleanupJob struct {
	cache   *Cache
	repo    *Repository
	timeout time.Duration
	log     zerolog.Logger
}

// NewCleanupJob creates a new client data cleanup job. Either tier may be nil.
func NewCleanupJob(cache *Cache, repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache:   cache,
		repo:    repo,
		timeout: 30 * time.Second,
		log:     log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run executes the cleanup job.
func (j *CleanupJob) Run() error {
	var total int64
	if j.cache != nil {
		total += int64(j.cache.DeleteExpired())
	}

	if j.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()

		results, err := j.repo.DeleteAllExpired(ctx)
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to delete expired client data")
			return err
		}
		for table, count := range results {
			if count > 0 {
				j.log.Debug().
					Str("table", table).
					Int64("deleted", count).
					Msg("Cleaned up expired cache entries")
				total += count
			}
		}
	}

	if total > 0 {
		j.log.Info().
			Int64("total_deleted", total).
			Msg("Client data cleanup completed")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
