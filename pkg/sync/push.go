package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/maxfraieho/membridge/pkg/localdb"
	"github.com/maxfraieho/membridge/pkg/lock"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/types"
)

// Push runs the push state machine (spec §4.6) for project against
// the configured object store and returns its tagged outcome. A
// non-nil error means the attempt could not even reach a terminal
// outcome (a context or programming error); every expected failure
// mode is instead reported via PushOutcome.Kind.
func (e *Engine) Push(ctx context.Context, project string) (PushOutcome, error) {
	canonicalID := types.CanonicalID(project)
	logger := log.WithComponent("sync").With().Str("canonical_id", canonicalID).Str("project", project).Logger()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OperationTimeout)
	defer cancel()

	// 1. Leadership gate.
	role, err := e.determineRole(ctx, canonicalID)
	if err != nil {
		return PushOutcome{Kind: PushFailedTransport, TransportCause: err.Error()}, nil
	}
	if role == types.RoleSecondary && !e.cfg.AllowSecondaryPush {
		logger.Info().Msg("push refused: this node is secondary")
		return PushOutcome{Kind: PushBlockedBySecondary, Detail: "this node is not the lease primary"}, nil
	}

	// 2. Quiesce.
	if err := e.quiesce(ctx); err != nil {
		return PushOutcome{}, err
	}

	// 3. Snapshot: integrity check, then vacuum-copy to a sibling temp path.
	integrityResult, err := localdb.IntegrityCheck(e.cfg.DBPath)
	if err != nil {
		e.resumeWorker(ctx)
		return PushOutcome{}, fmt.Errorf("sync: integrity check: %w", err)
	}
	if integrityResult != localdb.IntegrityOK {
		logger.Error().Str("reason", integrityResult).Msg("source database failed integrity check")
		e.resumeWorker(ctx)
		return PushOutcome{Kind: PushFailedIntegrity, IntegrityReason: integrityResult}, nil
	}

	tmpPath := tempSnapshotPath(e.cfg.DBPath)
	removeIfExists(tmpPath)
	if err := localdb.VacuumCopy(e.cfg.DBPath, tmpPath); err != nil {
		e.resumeWorker(ctx)
		return PushOutcome{}, fmt.Errorf("sync: vacuum copy: %w", err)
	}
	defer removeIfExists(tmpPath)

	counts, err := localdb.Counts(tmpPath)
	if err != nil {
		e.resumeWorker(ctx)
		return PushOutcome{}, fmt.Errorf("sync: count copy: %w", err)
	}

	// 4. Resume immediately; the copy is now independent of the live file.
	e.resumeWorker(ctx)

	// 5. Hash.
	sha, err := localdb.Hash(tmpPath)
	if err != nil {
		return PushOutcome{}, fmt.Errorf("sync: hash copy: %w", err)
	}

	// 6. Compare against remote.
	remoteHash, remoteErr := e.readRemoteHash(ctx, canonicalID)
	if remoteErr != nil {
		return PushOutcome{Kind: PushFailedTransport, TransportCause: remoteErr.Error()}, nil
	}
	if remoteHash == sha {
		logger.Info().Msg("remote already up to date")
		return PushOutcome{Kind: PushAlreadyCurrent, SHA256: sha, Detail: "remote already up to date"}, nil
	}
	if manifest, err := e.readManifest(ctx, canonicalID); err == nil && manifest != nil {
		if manifest.Observations > counts.Observations {
			logger.Warn().Int64("remote_observations", manifest.Observations).
				Int64("local_observations", counts.Observations).
				Msg("remote manifest reports more observations than local copy")
		}
	}

	// 7. Lock.
	lockResult, err := e.locks.Acquire(ctx, canonicalID, project, e.cfg.Host, e.cfg.ForceLock, time.Now().UTC())
	if err != nil {
		return PushOutcome{Kind: PushFailedTransport, TransportCause: err.Error()}, nil
	}
	if lockResult.Decision == lock.DecisionBlocked {
		logger.Info().Str("holder", lockResult.Holder).Dur("age", lockResult.Age).Msg("push blocked by foreign lock")
		return PushOutcome{Kind: PushBlockedByLock, LockHolder: lockResult.Holder, LockAge: lockResult.Age}, nil
	}

	// 8. Upload snapshot, hash text, then manifest.
	snapshotKey := objectstore.ProjectKey(canonicalID, dbObjectKey)
	if err := e.store.Upload(ctx, tmpPath, snapshotKey); err != nil {
		return PushOutcome{Kind: PushFailedTransport, TransportCause: err.Error()}, nil
	}

	hashKey := objectstore.ProjectKey(canonicalID, hashObjectKey)
	hashText := fmt.Sprintf("%s  %s\n", sha, dbFileName)
	if err := e.store.PutBytes(ctx, hashKey, []byte(hashText)); err != nil {
		return PushOutcome{Kind: PushFailedTransport, TransportCause: err.Error()}, nil
	}

	manifest := types.Manifest{
		Project:          project,
		CanonicalID:      canonicalID,
		Timestamp:        time.Now().UTC(),
		SourceHost:       e.cfg.Host,
		DBSize:           fileSize(tmpPath),
		SHA256:           sha,
		Observations:     counts.Observations,
		SessionSummaries: counts.SessionSummaries,
		UserPrompts:      counts.UserPrompts,
		Tables:           counts.Tables,
	}
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return PushOutcome{}, fmt.Errorf("sync: encode manifest: %w", err)
	}
	manifestKey := objectstore.ProjectKey(canonicalID, manifestObjectKey)
	if err := e.store.PutBytes(ctx, manifestKey, manifestData); err != nil {
		return PushOutcome{Kind: PushFailedTransport, TransportCause: err.Error()}, nil
	}

	// 9. Verify (best-effort; a mismatch warns but does not fail — the
	// upload has already happened).
	if verifyHash, err := e.readRemoteHash(ctx, canonicalID); err != nil {
		logger.Warn().Err(err).Msg("post-upload hash verification failed to read back")
	} else if verifyHash != sha {
		logger.Warn().Str("uploaded", sha).Str("readback", verifyHash).Msg("post-upload hash mismatch")
	}

	// 10. Cleanup happens via the deferred removeIfExists.
	logger.Info().Str("sha256", sha).Int64("observations", counts.Observations).Msg("push uploaded")
	return PushOutcome{Kind: PushUploaded, SHA256: sha, Observations: counts.Observations}, nil
}

func (e *Engine) readRemoteHash(ctx context.Context, canonicalID string) (string, error) {
	key := objectstore.ProjectKey(canonicalID, hashObjectKey)
	data, err := e.store.GetBytes(ctx, key)
	if err != nil {
		if errorsIsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return parseHashText(data), nil
}

func (e *Engine) readManifest(ctx context.Context, canonicalID string) (*types.Manifest, error) {
	key := objectstore.ProjectKey(canonicalID, manifestObjectKey)
	data, err := e.store.GetBytes(ctx, key)
	if err != nil {
		if errorsIsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("sync: decode manifest: %w", err)
	}
	return &m, nil
}

// parseHashText extracts the first whitespace-separated token, the
// authoritative hash, from the ".sha256" object's contents.
func parseHashText(data []byte) string {
	s := string(data)
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
