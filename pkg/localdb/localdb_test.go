package localdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func seedDB(t *testing.T, path string, observations int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE observations (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE session_summaries (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)

	for i := 0; i < observations; i++ {
		_, err := db.Exec(`INSERT INTO observations (body) VALUES (?)`, "obs")
		require.NoError(t, err)
	}
}

func TestIntegrityCheck_FreshDatabaseIsOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude-mem.db")
	seedDB(t, path, 3)

	result, err := IntegrityCheck(path)
	require.NoError(t, err)
	assert.Equal(t, IntegrityOK, result)
}

func TestCounts_ReportsTrackedTablesAndZerosMissingOnes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude-mem.db")
	seedDB(t, path, 5)

	counts, err := Counts(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), counts.Observations)
	assert.Equal(t, int64(0), counts.SessionSummaries)
	assert.Equal(t, int64(0), counts.UserPrompts)
	assert.GreaterOrEqual(t, counts.Tables, 2)
}

func TestVacuumCopy_ProducesIndependentCopy(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	dest := filepath.Join(dir, "dest.db")
	seedDB(t, source, 4)

	require.NoError(t, VacuumCopy(source, dest))

	counts, err := Counts(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.Observations)
}

func TestVacuumCopy_RefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	dest := filepath.Join(dir, "dest.db")
	seedDB(t, source, 1)
	seedDB(t, dest, 1)

	err := VacuumCopy(source, dest)
	assert.Error(t, err)
}

func TestHash_IsStableForSameContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude-mem.db")
	seedDB(t, path, 2)

	h1, err := Hash(path)
	require.NoError(t, err)
	h2, err := Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
