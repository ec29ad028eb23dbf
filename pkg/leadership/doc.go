/*
Package leadership implements the primary/secondary lease that gates
destructive sync operations. Authoritative writer-exclusion is the
object-store lock (see pkg/lock), not this lease: lease writes race
across nodes with last-writer-wins semantics and no compare-and-swap,
which is an accepted constraint — the lease is informational, used
only to decide whether a node's sync engine should continue, never to
assert exclusivity.

DetermineRole implements the bootstrap/expiry/steady-state decision
table: a missing lease is bootstrapped (primary to the configured
PRIMARY_NODE_ID if set, else this node, flagging needs_ui_selection
when no primary was configured); an expired lease lets the configured
primary renew it with an incremented epoch, or falls back to a single
best-effort re-read for anyone else; otherwise the role is read
directly off the current lease. WriteLease persists the lease and
appends a best-effort audit entry — a failed audit write is logged and
never fails the caller.
*/
package leadership
