/*
Package types defines the core data model shared across membridge:
projects, snapshots, locks, leases, audit entries, node records, and
job history. These are plain structs with JSON tags matching the
object-store key layout and control-plane wire format described in
the project's external interfaces; no behavior beyond small derived
helpers (CanonicalID, Lease.Expired, Lock.Age) lives here.

Projects are identified by name, but all storage and API keys are
rooted at the canonical id — the first 16 hex characters of
SHA-256(name) — so identity is stable even though these types do not
enforce name uniqueness themselves (that is the control plane
registry's job).
*/
package types
