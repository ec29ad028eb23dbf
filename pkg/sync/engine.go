package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/lock"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/maxfraieho/membridge/pkg/worker"
)

const (
	dbObjectKey       = "sqlite/claude-mem.db"
	hashObjectKey     = "sqlite/claude-mem.db.sha256"
	manifestObjectKey = "sqlite/manifest.json"
	dbFileName        = "claude-mem.db"

	defaultOperationTimeout = 120 * time.Second
	quiesceWait             = 500 * time.Millisecond
	pullResumeSettle        = 2 * time.Second
)

// Config holds the per-invocation policy the Engine needs beyond the
// managers it is built from.
type Config struct {
	DBPath                   string
	Host                     string
	ThisNode                 string
	AllowSecondaryPush       bool
	AllowPrimaryPullOverride bool
	NoRestartWorker          bool
	ForceLock                bool
	Retention                RetentionConfig
	OperationTimeout         time.Duration
}

// RetentionConfig bounds safety-backup eviction.
type RetentionConfig struct {
	MaxDays  int
	MaxCount int
}

// Store is the subset of objectstore.Client the sync engine depends
// on; tests substitute an in-memory fake instead of a real bucket.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	PutBytes(ctx context.Context, key string, body []byte) error
	Download(ctx context.Context, key, path string) error
	Upload(ctx context.Context, path, key string) error
}

// Engine wires the object store, lock manager, leadership manager,
// local DB adapter, and worker controller into the push and pull
// state machines. It holds no mutable state of its own.
type Engine struct {
	store      Store
	locks      *lock.Manager
	leadership *leadership.Manager
	ctrl       worker.Controller
	cfg        Config
}

// New builds an Engine from its dependencies.
func New(store Store, locks *lock.Manager, lead *leadership.Manager, ctrl worker.Controller, cfg Config) *Engine {
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	return &Engine{store: store, locks: locks, leadership: lead, ctrl: ctrl, cfg: cfg}
}

// determineRole consults the leadership manager, but is bypassed
// entirely when leadership is disabled: every node behaves as primary
// so neither gate ever fires.
func (e *Engine) determineRole(ctx context.Context, canonicalID string) (types.Role, error) {
	if e.leadership == nil || !e.leadership.Enabled() {
		return types.RolePrimary, nil
	}
	role, _, _, err := e.leadership.DetermineRole(ctx, canonicalID)
	if err != nil {
		return "", fmt.Errorf("sync: determine role: %w", err)
	}
	return role, nil
}

func (e *Engine) quiesce(ctx context.Context) error {
	if _, err := e.ctrl.Stop(ctx); err != nil {
		return fmt.Errorf("sync: stop worker: %w", err)
	}
	select {
	case <-time.After(quiesceWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (e *Engine) resumeWorker(ctx context.Context) {
	logger := log.WithComponent("sync")
	if err := e.ctrl.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to resume worker")
		return
	}
	if err := e.ctrl.WaitReady(ctx); err != nil {
		logger.Error().Err(err).Msg("worker did not become ready after resume")
	}
}

func tempSnapshotPath(dbPath string) string {
	return dbPath + ".sync-tmp"
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, objectstore.ErrNotFound)
}

func removeIfExists(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithComponent("sync").Warn().Err(err).Str("path", path).Msg("failed to remove temporary file")
	}
}
