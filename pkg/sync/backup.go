package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/types"
)

func backupsRoot(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "backups", "pull-overwrite")
}

// createBackup copies the existing local file at dbPath into a
// timestamped backup directory alongside a manifest recording both
// sides' hashes, the local copy's row counts, and the local-ahead
// flag. It returns the backup directory path.
func createBackup(dbPath, localHash, remoteHash string, localCounts types.DBCounts, remoteObservations int64, localAhead bool, now time.Time) (string, error) {
	dir := filepath.Join(backupsRoot(dbPath), now.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sync: create backup dir: %w", err)
	}

	dest := filepath.Join(dir, dbFileName)
	if err := copyFile(dbPath, dest); err != nil {
		return "", fmt.Errorf("sync: copy backup: %w", err)
	}

	manifest := types.BackupManifest{
		Timestamp:          now,
		Operation:          "pull-overwrite",
		LocalSHA256:        localHash,
		RemoteSHA256:       remoteHash,
		LocalCounts:        localCounts,
		RemoteObservations: remoteObservations,
		LocalAhead:         localAhead,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("sync: encode backup manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("sync: write backup manifest: %w", err)
	}

	return dir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// evictBackups removes safety backups older than maxDays and, beyond
// that, keeps only the newest maxCount. A zero bound disables that
// half of the policy.
func evictBackups(dbPath string, maxDays, maxCount int, now time.Time) {
	logger := log.WithComponent("sync")
	root := backupsRoot(dbPath)

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("root", root).Msg("failed to list backup directory")
		}
		return
	}

	type backup struct {
		name string
		info os.FileInfo
	}
	var backups []backup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{name: entry.Name(), info: info})
	}

	if maxDays > 0 {
		cutoff := now.Add(-time.Duration(maxDays) * 24 * time.Hour)
		kept := backups[:0]
		for _, b := range backups {
			if b.info.ModTime().Before(cutoff) {
				removeBackup(root, b.name)
				continue
			}
			kept = append(kept, b)
		}
		backups = kept
	}

	if maxCount > 0 && len(backups) > maxCount {
		sort.Slice(backups, func(i, j int) bool {
			return backups[i].info.ModTime().After(backups[j].info.ModTime())
		})
		for _, b := range backups[maxCount:] {
			removeBackup(root, b.name)
		}
	}
}

func removeBackup(root, name string) {
	path := filepath.Join(root, name)
	if err := os.RemoveAll(path); err != nil {
		log.WithComponent("sync").Warn().Err(err).Str("path", path).Msg("failed to evict backup")
	}
}
