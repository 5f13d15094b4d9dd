package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"linkvault-server/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStorage(SQLiteOptions{
		Path:      filepath.Join(dir, "records.db"),
		BackupDir: filepath.Join(dir, "backups"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRecordStore(t *testing.T) {
	runRecordStoreSuite(t, func(t *testing.T) RecordStore {
		return newTestSQLite(t)
	})
}

func TestSQLitePreservesFileFields(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := &models.ContentRecord{
		ID:               "f1",
		Kind:             models.KindFile,
		FilePath:         "1700000000000-123456789.pdf",
		OriginalFileName: "report.pdf",
		ContentType:      "application/pdf",
		Size:             2048,
		ExpiryTime:       baseTime.Add(10 * time.Minute),
		CreatedAt:        baseTime,
		Policy:           models.DownloadQuota(3),
		IsConsumed:       true,
	}
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.KindFile, got.Kind)
	assert.Equal(t, "report.pdf", got.OriginalFileName)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, models.DownloadQuota(3), got.Policy)
	assert.True(t, got.IsConsumed)
	assert.True(t, got.CreatedAt.Equal(baseTime))
}

func TestSQLiteMaintenance(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTextRecord("m1", baseTime.Add(time.Hour), models.NoLimit())))

	assert.True(t, s.IsHealthy())
	require.NoError(t, s.RunGC())
	require.NoError(t, s.CreateBackup())

	entries, err := os.ReadDir(s.backupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	stats := s.GetResourceStats()
	assert.Equal(t, "sqlite", stats["backend"])
	assert.Equal(t, 1, stats["record_count"])
}

func TestStoresSatisfyInterfaces(t *testing.T) {
	var _ RecordStore = (*BadgerStorage)(nil)
	var _ Lister = (*BadgerStorage)(nil)
	var _ Maintainer = (*BadgerStorage)(nil)
	var _ RecordStore = (*SQLiteStorage)(nil)
	var _ Lister = (*SQLiteStorage)(nil)
	var _ Maintainer = (*SQLiteStorage)(nil)
}
