/*
Package lock implements the single-writer advisory lock discipline
described for the object store's locks/active.lock object. It is not
compare-and-swap based — the grace window past TTL is the correctness
defense against a racy takeover while a legitimate holder is still
finishing.

Five cases are distinguished on Acquire when a lock object is already
present: held by this host (re-acquire), force override requested,
foreign holder within TTL (refuse), foreign holder within the grace
window past TTL (refuse, preserve a possibly-finishing holder), and
foreign holder past TTL+grace (steal, logged as a stale-lock
takeover). The lock is released implicitly by timing out, never by an
explicit delete, so a crashed holder leaves a recoverable state once
TTL+grace elapses.
*/
package lock
