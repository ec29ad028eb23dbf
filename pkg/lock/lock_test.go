package lock

import (
	"context"
	"testing"
	"time"

	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_NoExistingLockAcquires(t *testing.T) {
	store := objectstore.NewMemStore()
	m := NewManager(store, DefaultConfig())

	result, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, DecisionAcquired, result.Decision)
	assert.Equal(t, "node-a", result.Lock.Holder)
}

func TestAcquire_SameHolderReacquires(t *testing.T) {
	store := objectstore.NewMemStore()
	m := NewManager(store, DefaultConfig())
	now := time.Now()

	_, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, now)
	require.NoError(t, err)

	result, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, DecisionAcquired, result.Decision)
	assert.False(t, result.Stale)
}

func TestAcquire_ForeignFreshLockBlocks(t *testing.T) {
	store := objectstore.NewMemStore()
	m := NewManager(store, DefaultConfig())
	now := time.Now()

	_, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, now)
	require.NoError(t, err)

	result, err := m.Acquire(context.Background(), "canon", "demo", "node-b", false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, DecisionBlocked, result.Decision)
	assert.Equal(t, "node-a", result.Holder)
}

func TestAcquire_ForeignLockWithinGraceBlocks(t *testing.T) {
	store := objectstore.NewMemStore()
	cfg := Config{TTLSeconds: 10, GraceSeconds: 60}
	m := NewManager(store, cfg)
	now := time.Now()

	_, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, now)
	require.NoError(t, err)

	result, err := m.Acquire(context.Background(), "canon", "demo", "node-b", false, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, DecisionBlocked, result.Decision)
}

func TestAcquire_ForeignLockPastGraceTakesOverAsStale(t *testing.T) {
	store := objectstore.NewMemStore()
	cfg := Config{TTLSeconds: 10, GraceSeconds: 5}
	m := NewManager(store, cfg)
	now := time.Now()

	_, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, now)
	require.NoError(t, err)

	result, err := m.Acquire(context.Background(), "canon", "demo", "node-b", false, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, DecisionAcquired, result.Decision)
	assert.True(t, result.Stale)
	assert.Equal(t, "node-b", result.Lock.Holder)
}

func TestAcquire_ForceOverridesForeignFreshLock(t *testing.T) {
	store := objectstore.NewMemStore()
	m := NewManager(store, DefaultConfig())
	now := time.Now()

	_, err := m.Acquire(context.Background(), "canon", "demo", "node-a", false, now)
	require.NoError(t, err)

	result, err := m.Acquire(context.Background(), "canon", "demo", "node-b", true, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, DecisionAcquired, result.Decision)
	assert.True(t, result.Forced)
}

func TestInspect_NoLockReturnsNil(t *testing.T) {
	store := objectstore.NewMemStore()
	m := NewManager(store, DefaultConfig())

	lock, err := m.Inspect(context.Background(), "canon")
	require.NoError(t, err)
	assert.Nil(t, lock)
}
