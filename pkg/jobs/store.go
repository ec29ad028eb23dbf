package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maxfraieho/membridge/pkg/types"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action TEXT NOT NULL,
	project TEXT NOT NULL,
	agent TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	status TEXT NOT NULL,
	stdout TEXT,
	stderr TEXT,
	return_code INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	request_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_project ON jobs(project);
CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);
`

// Store persists job history to a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the job history database at path, initializing
// its schema on first use.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jobs: create dir: %w", err)
	}

	escaped := strings.ReplaceAll(path, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escaped+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("jobs: open %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobs: enable WAL: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobs: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// stdoutStderrTailBytes bounds stored stdout/stderr to the last 4096
// bytes per stream (spec §4.9), regardless of what the caller passes in.
const stdoutStderrTailBytes = 4096

func tailBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Insert records a completed job and returns its assigned id.
func (s *Store) Insert(ctx context.Context, rec types.JobRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (action, project, agent, canonical_id, status, stdout, stderr, return_code, started_at, finished_at, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Action), rec.Project, rec.Agent, rec.CanonicalID, rec.Status,
		tailBytes(rec.Stdout, stdoutStderrTailBytes), tailBytes(rec.Stderr, stdoutStderrTailBytes), rec.ReturnCode,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.RequestID,
	)
	if err != nil {
		return 0, fmt.Errorf("jobs: insert: %w", err)
	}
	return res.LastInsertId()
}

// Get fetches a single job by id.
func (s *Store) Get(ctx context.Context, id int64) (types.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, action, project, agent, canonical_id, status, stdout, stderr, return_code, started_at, finished_at, request_id
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// List returns recent jobs, optionally filtered by project, newest
// first, capped at limit (default 50 when limit <= 0).
func (s *Store) List(ctx context.Context, project string, limit int) ([]types.JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if project != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, action, project, agent, canonical_id, status, stdout, stderr, return_code, started_at, finished_at, request_id
			FROM jobs WHERE project = ? ORDER BY id DESC LIMIT ?`, project, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, action, project, agent, canonical_id, status, stdout, stderr, return_code, started_at, finished_at, request_id
			FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	var out []types.JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (types.JobRecord, error) {
	var (
		rec               types.JobRecord
		action            string
		startedAt, finAt  string
		stdout, stderr, rid sql.NullString
	)
	err := row.Scan(&rec.ID, &action, &rec.Project, &rec.Agent, &rec.CanonicalID, &rec.Status,
		&stdout, &stderr, &rec.ReturnCode, &startedAt, &finAt, &rid)
	if err == sql.ErrNoRows {
		return types.JobRecord{}, fmt.Errorf("jobs: not found")
	}
	if err != nil {
		return types.JobRecord{}, fmt.Errorf("jobs: scan: %w", err)
	}

	rec.Action = types.JobAction(action)
	rec.Stdout = stdout.String
	rec.Stderr = stderr.String
	rec.RequestID = rid.String
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finAt)
	return rec, nil
}
