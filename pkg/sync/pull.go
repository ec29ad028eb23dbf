package sync

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/maxfraieho/membridge/pkg/localdb"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/types"
)

// Pull runs the pull state machine (spec §4.7) for project, replacing
// the local snapshot with the remote one when they diverge. A non-nil
// error means the attempt could not reach a terminal outcome; every
// expected failure mode is reported via PullOutcome.Kind instead.
func (e *Engine) Pull(ctx context.Context, project string) (PullOutcome, error) {
	canonicalID := types.CanonicalID(project)
	logger := log.WithComponent("sync").With().Str("canonical_id", canonicalID).Str("project", project).Logger()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OperationTimeout)
	defer cancel()

	// 1. Discover.
	remoteHash, err := e.readRemoteHash(ctx, canonicalID)
	if err != nil {
		return PullOutcome{Kind: PullFailedTransport, TransportCause: err.Error()}, nil
	}
	if remoteHash == "" {
		return PullOutcome{Kind: PullFailedTransport, TransportCause: "no remote snapshot present"}, nil
	}

	localExists := fileExists(e.cfg.DBPath)
	var localHash string
	var localCounts types.DBCounts
	if localExists {
		localHash, err = localdb.Hash(e.cfg.DBPath)
		if err != nil {
			return PullOutcome{}, fmt.Errorf("sync: hash local: %w", err)
		}
		localCounts, err = localdb.Counts(e.cfg.DBPath)
		if err != nil {
			return PullOutcome{}, fmt.Errorf("sync: count local: %w", err)
		}
	}

	// 2. Compare.
	if localExists && localHash == remoteHash {
		logger.Info().Msg("local already up to date")
		return PullOutcome{Kind: PullUpToDate, SHA256: remoteHash}, nil
	}

	// 3. Primary gate.
	role, err := e.determineRole(ctx, canonicalID)
	if err != nil {
		return PullOutcome{Kind: PullFailedTransport, TransportCause: err.Error()}, nil
	}
	if role == types.RolePrimary && !e.cfg.AllowPrimaryPullOverride {
		logger.Warn().Msg("pull refused: this node is primary and remote diverges")
		return PullOutcome{Kind: PullBlockedPrimary, Detail: "primary observed a diverging remote snapshot"}, nil
	}

	// 4. Local-ahead warning.
	manifest, err := e.readManifest(ctx, canonicalID)
	if err != nil {
		return PullOutcome{Kind: PullFailedTransport, TransportCause: err.Error()}, nil
	}
	localAhead := false
	var remoteObservations int64
	if manifest != nil {
		remoteObservations = manifest.Observations
		if localExists && localCounts.Observations > manifest.Observations {
			localAhead = true
			logger.Warn().Int64("local_observations", localCounts.Observations).
				Int64("remote_observations", manifest.Observations).
				Msg("local observation count exceeds remote manifest; pull may discard local-only data")
		}
	}

	// 5. Download to a sibling temp file and verify its hash.
	tmpPath := tempSnapshotPath(e.cfg.DBPath)
	removeIfExists(tmpPath)
	defer removeIfExists(tmpPath)

	snapshotKey := objectstore.ProjectKey(canonicalID, dbObjectKey)
	if err := e.store.Download(ctx, snapshotKey, tmpPath); err != nil {
		return PullOutcome{Kind: PullFailedTransport, TransportCause: err.Error()}, nil
	}
	downloadedHash, err := localdb.Hash(tmpPath)
	if err != nil {
		return PullOutcome{}, fmt.Errorf("sync: hash downloaded snapshot: %w", err)
	}
	if downloadedHash != remoteHash {
		logger.Error().Str("expected", remoteHash).Str("got", downloadedHash).Msg("downloaded snapshot hash mismatch")
		return PullOutcome{Kind: PullFailedIntegrity, IntegrityReason: "downloaded snapshot hash does not match remote hash object"}, nil
	}

	// 6. Backup.
	var backupDir string
	if localExists {
		now := time.Now().UTC()
		backupDir, err = createBackup(e.cfg.DBPath, localHash, remoteHash, localCounts, remoteObservations, localAhead, now)
		if err != nil {
			return PullOutcome{}, err
		}
	}

	// 7. Quiesce.
	if err := e.quiesce(ctx); err != nil {
		return PullOutcome{}, err
	}

	// 8. Replace atomically.
	if err := os.Rename(tmpPath, e.cfg.DBPath); err != nil {
		e.resumeWorker(ctx)
		return PullOutcome{}, fmt.Errorf("sync: replace local snapshot: %w", err)
	}

	if _, err := localdb.Counts(e.cfg.DBPath); err != nil {
		logger.Warn().Err(err).Msg("failed to count replaced snapshot")
	}
	if finalHash, err := localdb.Hash(e.cfg.DBPath); err != nil {
		logger.Warn().Err(err).Msg("failed to hash replaced snapshot")
	} else if finalHash != remoteHash {
		logger.Warn().Str("expected", remoteHash).Str("got", finalHash).Msg("replaced snapshot hash mismatch")
	}

	// 9. Resume.
	if !e.cfg.NoRestartWorker {
		if err := e.ctrl.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to restart worker after pull")
		} else if err := e.ctrl.WaitReady(ctx); err != nil {
			logger.Error().Err(err).Msg("worker did not become ready after pull")
		} else {
			select {
			case <-time.After(pullResumeSettle):
			case <-ctx.Done():
			}
			if rehash, err := localdb.Hash(e.cfg.DBPath); err == nil && rehash != remoteHash {
				logger.Warn().Str("expected", remoteHash).Str("got", rehash).
					Msg("worker modified replaced snapshot shortly after restart")
			}
		}
	}

	// 10. Retention.
	evictBackups(e.cfg.DBPath, e.cfg.Retention.MaxDays, e.cfg.Retention.MaxCount, time.Now().UTC())

	logger.Info().Str("sha256", remoteHash).Str("backup_dir", backupDir).Msg("pull replaced local snapshot")
	return PullOutcome{Kind: PullReplaced, SHA256: remoteHash, BackupDir: backupDir, LocalAhead: localAhead}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
