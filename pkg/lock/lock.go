package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/types"
)

const lockKey = "locks/active.lock"

// Decision is the outcome of an Acquire call.
type Decision string

const (
	DecisionAcquired Decision = "acquired"
	DecisionBlocked  Decision = "blocked"
)

// Result reports what Acquire decided and, when blocked, who holds
// the lock and for how long.
type Result struct {
	Decision Decision
	Lock     types.Lock
	Holder   string
	Age      time.Duration
	Stale    bool // true if this Acquire performed a stale-lock takeover
	Forced   bool // true if this Acquire overwrote via force override
}

// Store is the subset of objectstore.Client the lock manager needs;
// tests substitute an in-memory fake.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	PutBytes(ctx context.Context, key string, body []byte) error
}

// Manager acquires and inspects the advisory write lock for one
// project (the object-store client is already scoped to a bucket; the
// canonical id scopes the key within it).
type Manager struct {
	store Store
	ttl   time.Duration
	grace time.Duration
}

// Config holds the lock policy, mirroring LOCK_TTL_SECONDS and
// STALE_LOCK_GRACE_SECONDS.
type Config struct {
	TTLSeconds   int
	GraceSeconds int
}

// DefaultConfig returns the spec's defaults: 7200s TTL, 60s grace.
func DefaultConfig() Config {
	return Config{TTLSeconds: 7200, GraceSeconds: 60}
}

// NewManager builds a Manager against store using cfg's policy.
func NewManager(store Store, cfg Config) *Manager {
	return &Manager{
		store: store,
		ttl:   time.Duration(cfg.TTLSeconds) * time.Second,
		grace: time.Duration(cfg.GraceSeconds) * time.Second,
	}
}

// Inspect reads the current lock object, if any, without mutating it.
func (m *Manager) Inspect(ctx context.Context, canonicalID string) (*types.Lock, error) {
	key := objectstore.ProjectKey(canonicalID, lockKey)
	data, err := m.store.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var l types.Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("lock: decode %s: %w", key, err)
	}
	return &l, nil
}

// Acquire applies the five-case decision table and, when it decides to
// write, persists a fresh lock object stamped with host and now.
func (m *Manager) Acquire(ctx context.Context, canonicalID, project, host string, force bool, now time.Time) (Result, error) {
	logger := log.WithComponent("lock")

	existing, err := m.Inspect(ctx, canonicalID)
	if err != nil {
		return Result{}, err
	}

	if existing == nil {
		return m.write(ctx, canonicalID, project, host, now, Result{Decision: DecisionAcquired})
	}

	if existing.Holder == host {
		return m.write(ctx, canonicalID, project, host, now, Result{Decision: DecisionAcquired})
	}

	if force {
		logger.Warn().Str("canonical_id", canonicalID).Str("previous_holder", existing.Holder).
			Msg("force override of foreign lock")
		return m.write(ctx, canonicalID, project, host, now, Result{Decision: DecisionAcquired, Forced: true})
	}

	age := existing.Age(now)
	switch {
	case age < m.ttl:
		return Result{Decision: DecisionBlocked, Lock: *existing, Holder: existing.Holder, Age: age}, nil
	case age <= m.ttl+m.grace:
		logger.Info().Str("canonical_id", canonicalID).Dur("age", age).
			Msg("foreign lock within grace window, refusing")
		return Result{Decision: DecisionBlocked, Lock: *existing, Holder: existing.Holder, Age: age}, nil
	default:
		logger.Warn().Str("canonical_id", canonicalID).Str("previous_holder", existing.Holder).Dur("age", age).
			Msg("stale lock takeover")
		return m.write(ctx, canonicalID, project, host, now, Result{Decision: DecisionAcquired, Stale: true})
	}
}

func (m *Manager) write(ctx context.Context, canonicalID, project, host string, now time.Time, result Result) (Result, error) {
	l := types.Lock{
		Holder:      host,
		Timestamp:   now,
		Project:     project,
		CanonicalID: canonicalID,
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("lock: encode: %w", err)
	}
	key := objectstore.ProjectKey(canonicalID, lockKey)
	if err := m.store.PutBytes(ctx, key, data); err != nil {
		return Result{}, fmt.Errorf("lock: write %s: %w", key, err)
	}
	result.Lock = l
	return result, nil
}
