package jobs

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id, err := s.Insert(ctx, types.JobRecord{
		Action:      types.JobActionPush,
		Project:     "demo",
		Agent:       "node-a",
		CanonicalID: "abc123",
		Status:      "ok",
		ReturnCode:  0,
		StartedAt:   now,
		FinishedAt:  now.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobActionPush, rec.Action)
	assert.Equal(t, "demo", rec.Project)
	assert.Equal(t, "node-a", rec.Agent)
}

func TestStore_ListFiltersByProjectAndOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, p := range []string{"a", "b", "a"} {
		_, err := s.Insert(ctx, types.JobRecord{
			Action: types.JobActionPull, Project: p, Agent: "node", CanonicalID: "c",
			Status: "ok", StartedAt: now.Add(time.Duration(i) * time.Second), FinishedAt: now,
		})
		require.NoError(t, err)
	}

	recs, err := s.List(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Greater(t, recs[0].ID, recs[1].ID)

	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_GetMissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), 999)
	assert.Error(t, err)
}

func TestStore_InsertTruncatesStdoutAndStderrToLast4096Bytes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	longOut := strings.Repeat("o", 10000)
	longErr := strings.Repeat("e", 10000)

	id, err := s.Insert(ctx, types.JobRecord{
		Action: types.JobActionPush, Project: "demo", Agent: "node-a", CanonicalID: "abc123",
		Status: "ok", Stdout: longOut, Stderr: longErr, StartedAt: now, FinishedAt: now,
	})
	require.NoError(t, err)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rec.Stdout, stdoutStderrTailBytes)
	assert.Len(t, rec.Stderr, stdoutStderrTailBytes)
	assert.Equal(t, longOut[len(longOut)-stdoutStderrTailBytes:], rec.Stdout)
	assert.Equal(t, longErr[len(longErr)-stdoutStderrTailBytes:], rec.Stderr)
}
