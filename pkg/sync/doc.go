/*
Package sync implements the push and pull state machines: the only
code paths allowed to move bytes between the local snapshot and the
object store.

Both machines report a tagged outcome (PushOutcome, PullOutcome) with
distinct fields per case rather than an ad-hoc status string, so
callers pattern-match on Kind instead of parsing text:

	outcome, err := engine.Push(ctx, project)
	if err != nil {
		// transport/programming error before any outcome could be reached
	}
	switch outcome.Kind {
	case sync.PushUploaded:
		// ...
	case sync.PushBlockedByLock:
		logger.Info().Str("holder", outcome.LockHolder).Dur("age", outcome.LockAge).Msg("blocked")
	}

Push (§4.6): leadership gate, quiesce, vacuum-copy snapshot, resume
worker, hash, compare against remote, lock, upload snapshot + hash +
manifest, verify, cleanup.

Pull (§4.7): discover remote hash, compare against local, primary
gate, local-ahead check, download to temp, backup existing local,
quiesce, atomic replace, resume and re-hash, evict old backups.

Engine wires together the object store, lock manager, leadership
manager, local DB adapter, and worker controller; it holds no state of
its own beyond that wiring.
*/
package sync
