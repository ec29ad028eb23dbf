package leadership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/types"
)

const leaseKey = "leadership/lease.json"

// Config holds leadership policy, mirroring LEADERSHIP_ENABLED,
// LEADERSHIP_LEASE_SECONDS, and PRIMARY_NODE_ID.
type Config struct {
	Enabled          bool
	LeaseSeconds     int
	ConfiguredPrimary string // PRIMARY_NODE_ID; empty if unset
}

// DefaultConfig returns the spec's default: leadership enabled, 3600s
// lease, no configured primary.
func DefaultConfig() Config {
	return Config{Enabled: true, LeaseSeconds: 3600}
}

// Store is the subset of objectstore.Client the leadership manager
// needs; tests substitute an in-memory fake.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	PutBytes(ctx context.Context, key string, body []byte) error
}

// Manager reads and writes the lease object and decides a node's role.
type Manager struct {
	store    Store
	thisNode string
	cfg      Config
}

// NewManager builds a Manager for thisNode's perspective.
func NewManager(store Store, thisNode string, cfg Config) *Manager {
	return &Manager{store: store, thisNode: thisNode, cfg: cfg}
}

// Enabled reports whether LEADERSHIP_ENABLED is set; when false, the
// sync engine bypasses the secondary-push and primary-pull gates.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Inspect reads the current lease object, if any, without mutating
// it — unlike DetermineRole, which may bootstrap or renew.
func (m *Manager) Inspect(ctx context.Context, canonicalID string) (*types.Lease, error) {
	return m.readLease(ctx, canonicalID)
}

// readLease fetches the current lease object, or nil if absent.
func (m *Manager) readLease(ctx context.Context, canonicalID string) (*types.Lease, error) {
	key := objectstore.ProjectKey(canonicalID, leaseKey)
	data, err := m.store.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var l types.Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("leadership: decode lease: %w", err)
	}
	return &l, nil
}

// DetermineRole implements the bootstrap/expiry/steady-state table
// from the design: it may write a lease as a side effect (bootstrap or
// renewal), reported via wasCreated.
func (m *Manager) DetermineRole(ctx context.Context, canonicalID string) (role types.Role, lease types.Lease, wasCreated bool, err error) {
	now := time.Now().UTC()

	existing, err := m.readLease(ctx, canonicalID)
	if err != nil {
		return "", types.Lease{}, false, err
	}

	if existing == nil {
		primary := m.cfg.ConfiguredPrimary
		needsUI := primary == ""
		if primary == "" {
			primary = m.thisNode
		}
		l, err := m.WriteLease(ctx, canonicalID, primary, m.cfg.LeaseSeconds, 1, needsUI, now)
		if err != nil {
			return "", types.Lease{}, false, err
		}
		return m.roleFor(l), l, true, nil
	}

	if existing.Expired(now) {
		if m.cfg.ConfiguredPrimary != "" && m.cfg.ConfiguredPrimary == m.thisNode {
			l, err := m.WriteLease(ctx, canonicalID, m.thisNode, m.cfg.LeaseSeconds, existing.Epoch+1, false, now)
			if err != nil {
				return "", types.Lease{}, false, err
			}
			return types.RolePrimary, l, true, nil
		}

		// Best-effort race mitigation: another node may be renewing
		// concurrently. Re-read once before declaring secondary.
		reread, err := m.readLease(ctx, canonicalID)
		if err != nil {
			return "", types.Lease{}, false, err
		}
		if reread != nil && !reread.Expired(now) {
			return m.roleFor(*reread), *reread, false, nil
		}
		if reread == nil {
			reread = existing
		}
		return types.RoleSecondary, *reread, true, nil
	}

	return m.roleFor(*existing), *existing, false, nil
}

func (m *Manager) roleFor(l types.Lease) types.Role {
	if l.PrimaryNodeID == m.thisNode {
		return types.RolePrimary
	}
	return types.RoleSecondary
}

// WriteLease persists a lease with the given primary/epoch and appends
// a best-effort audit entry (delivery failures are logged, not
// propagated).
func (m *Manager) WriteLease(ctx context.Context, canonicalID, primary string, leaseSeconds, epoch int, needsUI bool, now time.Time) (types.Lease, error) {
	l := types.Lease{
		CanonicalID:      canonicalID,
		PrimaryNodeID:    primary,
		IssuedAt:         now,
		ExpiresAt:        now.Add(time.Duration(leaseSeconds) * time.Second),
		LeaseSeconds:     leaseSeconds,
		Epoch:            epoch,
		Policy:           types.LeasePolicy,
		IssuedBy:         m.thisNode,
		NeedsUISelection: needsUI,
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return types.Lease{}, fmt.Errorf("leadership: encode lease: %w", err)
	}
	key := objectstore.ProjectKey(canonicalID, leaseKey)
	if err := m.store.PutBytes(ctx, key, data); err != nil {
		return types.Lease{}, fmt.Errorf("leadership: write lease: %w", err)
	}

	m.appendAudit(ctx, canonicalID, l, now)
	return l, nil
}

func (m *Manager) appendAudit(ctx context.Context, canonicalID string, l types.Lease, now time.Time) {
	action := "renew"
	if l.Epoch == 1 {
		action = "bootstrap"
	}

	entry := types.AuditEntry{
		CanonicalID:   canonicalID,
		NodeID:        m.thisNode,
		Timestamp:     now,
		Action:        action,
		PrimaryNodeID: l.PrimaryNodeID,
		Epoch:         l.Epoch,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		log.WithComponent("leadership").Warn().Err(err).Msg("failed to encode audit entry")
		return
	}

	key := objectstore.ProjectKey(canonicalID, fmt.Sprintf("leadership/audit/%s-%s.json",
		now.Format("20060102T150405Z"), sanitizeNodeID(m.thisNode)))

	if err := m.store.PutBytes(ctx, key, data); err != nil {
		// Best-effort: a dropped audit entry never fails the caller.
		log.WithComponent("leadership").Warn().Err(err).Str("key", key).Msg("audit log write failed")
	}
}

func sanitizeNodeID(nodeID string) string {
	if nodeID == "" {
		return uuid.NewString()
	}
	return nodeID
}
