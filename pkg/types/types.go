package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CanonicalID derives the stable, purely-derived project identifier:
// the first 16 hex characters of SHA-256(name). Identity survives a
// project rename only if a new project is created — the name is not
// part of the derivation's input beyond this call.
func CanonicalID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:16]
}

// Project is identified by a human name; CanonicalID is derived from it.
type Project struct {
	Name        string    `json:"name"`
	CanonicalID string    `json:"canonical_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Manifest is the human-readable metadata object written alongside a
// snapshot (sqlite/manifest.json).
type Manifest struct {
	Project           string    `json:"project"`
	CanonicalID       string    `json:"canonical_id"`
	Timestamp         time.Time `json:"timestamp"`
	SourceHost        string    `json:"source_host"`
	DBSize            int64     `json:"db_size"`
	SHA256            string    `json:"sha256"`
	Observations      int64     `json:"observations"`
	SessionSummaries  int64     `json:"session_summaries"`
	UserPrompts       int64     `json:"user_prompts"`
	Tables            int       `json:"tables"`
}

// Lock is the advisory write lock object (locks/active.lock).
type Lock struct {
	Holder      string    `json:"holder"`
	Timestamp   time.Time `json:"timestamp"`
	Project     string    `json:"project"`
	CanonicalID string    `json:"canonical_id"`
}

// Age reports how long ago the lock was written, relative to now.
func (l Lock) Age(now time.Time) time.Duration {
	return now.Sub(l.Timestamp)
}

// LeasePolicy is always "primary_authoritative" in this design; there
// is no automatic election, only administrative primary selection.
const LeasePolicy = "primary_authoritative"

// Lease names the current primary node for a project
// (leadership/lease.json).
type Lease struct {
	CanonicalID     string    `json:"canonical_id"`
	PrimaryNodeID   string    `json:"primary_node_id"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	LeaseSeconds    int       `json:"lease_seconds"`
	Epoch           int       `json:"epoch"`
	Policy          string    `json:"policy"`
	IssuedBy        string    `json:"issued_by"`
	NeedsUISelection bool     `json:"needs_ui_selection,omitempty"`
}

// Expired reports whether the lease is no longer valid at time now.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// AuditEntry is an append-only record of a lease write
// (leadership/audit/{timestamp}-{node}.json). Delivery is best-effort.
type AuditEntry struct {
	CanonicalID string    `json:"canonical_id"`
	NodeID      string    `json:"node_id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"` // "bootstrap", "renew"
	PrimaryNodeID string  `json:"primary_node_id"`
	Epoch       int       `json:"epoch"`
}

// Role is the outcome of leadership determination for a node.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// NodeRecord is the control plane's view of a single agent's state for
// one project. Keyed by (CanonicalID, NodeID).
type NodeRecord struct {
	NodeID       string    `json:"node_id"`
	CanonicalID  string    `json:"canonical_id"`
	Role         Role      `json:"role"`
	ObsCount     *int64    `json:"obs_count,omitempty"`
	DBSha        string    `json:"db_sha,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	IPAddrs      []string  `json:"ip_addrs"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Stale reports whether the node record should be treated as offline
// for presentation purposes (no hard deletion is performed).
func (n NodeRecord) Stale(now time.Time, heartbeatInterval time.Duration) bool {
	threshold := 3 * heartbeatInterval
	return now.Sub(n.LastSeen) > threshold
}

// Agent is a registered control-plane agent (name + URL).
type Agent struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Status    string    `json:"status"` // "online", "offline"
	CreatedAt time.Time `json:"created_at"`
}

// ProjectEntry is the agent-local persisted record of a known project.
type ProjectEntry struct {
	ProjectID   string    `json:"project_id"`
	CanonicalID string    `json:"canonical_id"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	Path        string    `json:"path,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ObsCount    *int64    `json:"obs_count,omitempty"`
	DBSha       string    `json:"db_sha,omitempty"`
	RepoURL     string    `json:"repo_url,omitempty"`
}

// DBCounts is the best-effort row/table census of a snapshot.
// Missing tables count as zero.
type DBCounts struct {
	Observations     int64
	SessionSummaries int64
	UserPrompts      int64
	Tables           int
}

// JobAction names the dispatched operation recorded in job history.
type JobAction string

const (
	JobActionPush JobAction = "push"
	JobActionPull JobAction = "pull"
)

// JobRecord is one row of control-plane job history.
type JobRecord struct {
	ID          int64     `json:"id"`
	Action      JobAction `json:"action"`
	Project     string    `json:"project"`
	Agent       string    `json:"agent"`
	CanonicalID string    `json:"canonical_id"`
	Status      string    `json:"status"`
	Stdout      string    `json:"stdout,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
	ReturnCode  int       `json:"return_code"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	RequestID   string    `json:"request_id,omitempty"`
}

// BackupManifest describes a safety backup taken before a pull
// overwrites the local snapshot.
type BackupManifest struct {
	Timestamp        time.Time `json:"timestamp"`
	Operation        string    `json:"operation"` // "pull-overwrite"
	LocalSHA256      string    `json:"local_sha256"`
	RemoteSHA256     string    `json:"remote_sha256"`
	LocalCounts      DBCounts  `json:"local_counts"`
	RemoteObservations int64   `json:"remote_observations"`
	LocalAhead       bool      `json:"local_ahead"`
}
