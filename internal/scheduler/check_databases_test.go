package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/aristath/nestegg/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	assert.Equal(t, "check_wal_checkpoints", NewCheckWALCheckpointsJob(nil).Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(map[string]*database.DB{"portfolio": nil})
	job.SetLogger(zerolog.Nop())

	assert.NoError(t, job.Run()) // nil databases are skipped
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	job := NewCheckWALCheckpointsJob(map[string]*database.DB{
		"portfolio": openDB(t, "portfolio"),
		"cache":     openDB(t, "cache"),
	})
	job.SetLogger(zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestCheckCoreDatabasesJob_Name(t *testing.T) {
	assert.Equal(t, "check_core_databases", NewCheckCoreDatabasesJob(nil).Name())
}

func TestCheckCoreDatabasesJob_Run(t *testing.T) {
	job := NewCheckCoreDatabasesJob(map[string]*database.DB{
		"portfolio": openDB(t, "portfolio"),
		"missing":   nil,
	})
	job.SetLogger(zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestCheckCoreDatabasesJob_ClosedDatabaseFails(t *testing.T) {
	db := openDB(t, "portfolio")
	require.NoError(t, db.Close())

	job := NewCheckCoreDatabasesJob(map[string]*database.DB{"portfolio": db})
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database portfolio")
}
