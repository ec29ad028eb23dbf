package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalID_IsStableAndDistinct(t *testing.T) {
	a1 := CanonicalID("project-a")
	a2 := CanonicalID("project-a")
	b := CanonicalID("project-b")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.Len(t, a1, 16)
}

func TestLock_Age(t *testing.T) {
	now := time.Now()
	lock := Lock{Timestamp: now.Add(-90 * time.Second)}
	assert.InDelta(t, 90*time.Second, lock.Age(now), float64(time.Second))
}

func TestLease_Expired(t *testing.T) {
	now := time.Now()
	lease := Lease{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, lease.Expired(now))

	lease.ExpiresAt = now.Add(time.Minute)
	assert.False(t, lease.Expired(now))
}

func TestNodeRecord_Stale(t *testing.T) {
	now := time.Now()
	interval := 10 * time.Second

	fresh := NodeRecord{LastSeen: now.Add(-5 * time.Second)}
	assert.False(t, fresh.Stale(now, interval))

	stale := NodeRecord{LastSeen: now.Add(-31 * time.Second)}
	assert.True(t, stale.Stale(now, interval))
}
