package sync

import (
	"context"
	"testing"
	"time"

	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/localdb"
	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctor_ReportsIntegrityWithNoLockOrLease(t *testing.T) {
	dbPath := tempDBPath(t)
	newTestDB(t, dbPath, 3)
	engine, _, _ := newTestEngine(t, dbPath, leadership.DefaultConfig(), false, false)

	report, err := engine.Doctor(context.Background(), "demo")
	require.NoError(t, err)
	assert.True(t, report.IntegrityOK)
	assert.Equal(t, localdb.IntegrityOK, report.Integrity)
	assert.Nil(t, report.Lock)
	assert.Nil(t, report.Lease)
	require.NotNil(t, report.Counts)
	assert.Equal(t, int64(3), report.Counts.Observations)
}

func TestDoctor_ReportsExistingLockAndLease(t *testing.T) {
	dbPath := tempDBPath(t)
	newTestDB(t, dbPath, 1)
	engine, store, _ := newTestEngine(t, dbPath, leadership.DefaultConfig(), false, false)

	canonicalID := types.CanonicalID("demo-canonical")
	locks := engine.locks
	_, err := locks.Acquire(context.Background(), canonicalID, "demo", "node-a", false, time.Now().UTC())
	require.NoError(t, err)

	lead := leadership.NewManager(store, "node-a", leadership.DefaultConfig())
	_, _, _, err = lead.DetermineRole(context.Background(), canonicalID)
	require.NoError(t, err)

	report, err := engine.Doctor(context.Background(), "demo-canonical")
	require.NoError(t, err)
	require.NotNil(t, report.Lock)
	assert.Equal(t, "node-a", report.Lock.Holder)
	require.NotNil(t, report.Lease)
	assert.Equal(t, "node-a", report.Lease.PrimaryNodeID)
}
