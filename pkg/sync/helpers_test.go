package sync

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// newTestDB creates a fresh sqlite file at path with the three tracked
// tables and observations rows seeded.
func newTestDB(t *testing.T, path string, observations int) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE observations (id INTEGER PRIMARY KEY, body TEXT)`,
		`CREATE TABLE session_summaries (id INTEGER PRIMARY KEY, body TEXT)`,
		`CREATE TABLE user_prompts (id INTEGER PRIMARY KEY, body TEXT)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	for i := 0; i < observations; i++ {
		if _, err := db.Exec(`INSERT INTO observations (body) VALUES (?)`, "obs"); err != nil {
			t.Fatalf("seed observations: %v", err)
		}
	}
}

func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "claude-mem.db")
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
}
