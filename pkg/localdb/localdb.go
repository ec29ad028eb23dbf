package localdb

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maxfraieho/membridge/pkg/types"
	_ "modernc.org/sqlite"
)

// trackedTables are the three tables the sync engine cares about; any
// other table in the snapshot is opaque to membridge.
var trackedTables = []string{"observations", "session_summaries", "user_prompts"}

// IntegrityOK is the result string IntegrityCheck returns when the
// database passes its self-check.
const IntegrityOK = "ok"

// open returns a read-only-ish connection suitable for checks and
// counts; callers that mutate (VacuumCopy target is never opened by
// this package) never see this handle.
func open(path string) (*sql.DB, error) {
	escaped := strings.ReplaceAll(path, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escaped+"?mode=ro&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("localdb: open %s: %w", path, err)
	}
	return db, nil
}

// IntegrityCheck runs SQLite's built-in integrity_check pragma and
// returns "ok" on success or the first reported inconsistency.
func IntegrityCheck(path string) (string, error) {
	db, err := open(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := db.Query("PRAGMA integrity_check;")
	if err != nil {
		return "", fmt.Errorf("localdb: integrity_check %s: %w", path, err)
	}
	defer rows.Close()

	var first string
	count := 0
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", fmt.Errorf("localdb: scan integrity_check: %w", err)
		}
		if count == 0 {
			first = line
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("localdb: integrity_check %s: %w", path, err)
	}

	if count == 1 && strings.EqualFold(first, IntegrityOK) {
		return IntegrityOK, nil
	}
	return first, nil
}

// VacuumCopy produces a consistent, defragmented copy of source at
// dest using SQLite's VACUUM INTO, which takes its own read snapshot
// and requires no exclusive lock on source beyond the statement's
// duration. dest must not already exist.
func VacuumCopy(source, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("localdb: vacuum_copy: destination already exists: %s", dest)
	}

	db, err := sql.Open("sqlite", source)
	if err != nil {
		return fmt.Errorf("localdb: open %s: %w", source, err)
	}
	defer db.Close()

	escapedDest := strings.ReplaceAll(dest, "'", "''")
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s';", escapedDest)); err != nil {
		return fmt.Errorf("localdb: vacuum_copy %s -> %s: %w", source, dest, err)
	}
	return nil
}

// Counts returns the best-effort row census of path's tracked tables
// plus the total table count. A missing tracked table counts as zero
// rather than failing the whole call.
func Counts(path string) (types.DBCounts, error) {
	db, err := open(path)
	if err != nil {
		return types.DBCounts{}, err
	}
	defer db.Close()

	var out types.DBCounts

	for _, table := range trackedTables {
		n, err := countRows(db, table)
		if err != nil {
			return types.DBCounts{}, err
		}
		switch table {
		case "observations":
			out.Observations = n
		case "session_summaries":
			out.SessionSummaries = n
		case "user_prompts":
			out.UserPrompts = n
		}
	}

	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table'`).Scan(&out.Tables); err != nil {
		return types.DBCounts{}, fmt.Errorf("localdb: count tables %s: %w", path, err)
	}

	return out, nil
}

func countRows(db *sql.DB, table string) (int64, error) {
	var n int64
	// table is one of the fixed trackedTables constants, never
	// caller-supplied, so this is not a SQL-injection surface.
	err := db.QueryRow(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n)
	if err == nil {
		return n, nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return 0, nil
	}
	return 0, fmt.Errorf("localdb: count %s: %w", table, err)
}

// Hash returns the lowercase hex SHA-256 of the file at path.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("localdb: hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("localdb: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
