package reliability

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/nestegg/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupJob_Run(t *testing.T) {
	dataDir := t.TempDir()
	store := newMemStore()
	svc := NewBackupService(store, map[string]*database.DB{"portfolio": openPortfolioDB(t, dataDir)}, dataDir, zerolog.Nop())

	job := NewBackupJob(svc, 30, zerolog.Nop())
	assert.Equal(t, "ledger_backup", job.Name())
	require.NoError(t, job.Run())
	assert.Len(t, store.keys(), 1)

	store.uploadErr = errors.New("denied")
	assert.Error(t, job.Run())
}

func TestCheckDiskSpaceJob(t *testing.T) {
	dir := t.TempDir()

	job := NewCheckDiskSpaceJob(dir, 0, zerolog.Nop())
	assert.Equal(t, "check_disk_space", job.Name())
	assert.NoError(t, job.Run())

	assert.Error(t, NewCheckDiskSpaceJob(dir, 1<<40, zerolog.Nop()).Run())
	assert.Error(t, NewCheckDiskSpaceJob(dir+"/missing", 0, zerolog.Nop()).Run())
}

func TestNewR2Client(t *testing.T) {
	_, err := NewR2Client(context.Background(), R2Config{}, zerolog.Nop())
	assert.Error(t, err, "bucket is required")

	client, err := NewR2Client(context.Background(), R2Config{
		Endpoint:        "http://127.0.0.1:9000",
		Bucket:          "ledger",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "ledger", client.bucket)
}
