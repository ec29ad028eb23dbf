package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBackup_WritesFileAndManifest(t *testing.T) {
	dbPath := tempDBPath(t)
	newTestDB(t, dbPath, 7)

	now := time.Now().UTC()
	dir, err := createBackup(dbPath, "localhash", "remotehash", types.DBCounts{Observations: 7, Tables: 3}, 12, true, now)
	require.NoError(t, err)

	mustExist(t, filepath.Join(dir, dbFileName))
	mustExist(t, filepath.Join(dir, "manifest.json"))

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "localhash")
	assert.Contains(t, string(data), "remotehash")
	assert.Contains(t, string(data), `"local_ahead": true`)
}

func TestEvictBackups_RespectsMaxCount(t *testing.T) {
	dbPath := tempDBPath(t)
	root := backupsRoot(dbPath)
	require.NoError(t, os.MkdirAll(root, 0o755))

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		dir := filepath.Join(root, ts.Format("20060102T150405Z"))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		modTime := ts
		require.NoError(t, os.Chtimes(dir, modTime, modTime))
	}

	evictBackups(dbPath, 0, 2, base.Add(time.Hour))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEvictBackups_RespectsMaxDays(t *testing.T) {
	dbPath := tempDBPath(t)
	root := backupsRoot(dbPath)
	require.NoError(t, os.MkdirAll(root, 0o755))

	now := time.Now().UTC()
	old := filepath.Join(root, "old")
	require.NoError(t, os.MkdirAll(old, 0o755))
	oldTime := now.Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	recent := filepath.Join(root, "recent")
	require.NoError(t, os.MkdirAll(recent, 0o755))
	require.NoError(t, os.Chtimes(recent, now, now))

	evictBackups(dbPath, 30, 0, now)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Name())
}

func TestEvictBackups_NoDirectoryIsNotAnError(t *testing.T) {
	dbPath := tempDBPath(t)
	evictBackups(dbPath, 30, 10, time.Now().UTC())
}
