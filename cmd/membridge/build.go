package main

import (
	"fmt"
	"time"

	"github.com/maxfraieho/membridge/internal/config"
	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/lock"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/sync"
	"github.com/maxfraieho/membridge/pkg/worker"
	"github.com/spf13/cobra"
)

// syncFlags registers the flags shared by push, pull, and doctor: the
// worker process is an out-of-scope collaborator (spec §1), so its
// pidfile/command/readiness port are CLI-only knobs, not env config.
func syncFlags(cmd *cobra.Command) {
	cmd.Flags().String("pidfile", "./membridge-worker.pid", "Worker pidfile path")
	cmd.Flags().String("worker-command", "", "Worker start command")
	cmd.Flags().StringSlice("worker-args", nil, "Worker start command arguments")
	cmd.Flags().String("worker-dir", "", "Worker working directory")
	cmd.Flags().Int("worker-readiness-port", 0, "Worker readiness HTTP port")
	cmd.Flags().Bool("no-restart-worker", false, "Skip restarting the worker after a pull")
	cmd.Flags().String("project", "", "Project name (defaults to CLAUDE_PROJECT_ID)")
}

// buildEngine wires an object-store client, lock manager, leadership
// manager, and worker controller into a sync.Engine from the process
// environment plus this invocation's flags.
func buildEngine(cmd *cobra.Command, cfg config.Config) (*sync.Engine, string, error) {
	project := cfg.ProjectName
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		project = v
	}
	if project == "" {
		return nil, "", fmt.Errorf("project is required (--project or CLAUDE_PROJECT_ID)")
	}

	store, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.Store.Endpoint,
		AccessKey: cfg.Store.AccessKey,
		SecretKey: cfg.Store.SecretKey,
		Bucket:    cfg.Store.Bucket,
		Region:    cfg.Store.Region,
		UseSSL:    cfg.Store.UseSSL,
	})
	if err != nil {
		return nil, "", fmt.Errorf("build object store client: %w", err)
	}

	locks := lock.NewManager(store, lock.Config{
		TTLSeconds:   cfg.Lock.TTLSeconds,
		GraceSeconds: cfg.Lock.GraceSeconds,
	})
	lead := leadership.NewManager(store, cfg.NodeID, leadership.Config{
		Enabled:           cfg.Leadership.Enabled,
		LeaseSeconds:      cfg.Leadership.LeaseSeconds,
		ConfiguredPrimary: cfg.Leadership.ConfiguredPrimary,
	})

	pidfile, _ := cmd.Flags().GetString("pidfile")
	workerCmd, _ := cmd.Flags().GetString("worker-command")
	workerArgs, _ := cmd.Flags().GetStringSlice("worker-args")
	workerDir, _ := cmd.Flags().GetString("worker-dir")
	readinessPort, _ := cmd.Flags().GetInt("worker-readiness-port")

	workerCfg := worker.DefaultConfig()
	workerCfg.PIDFile = pidfile
	workerCfg.Command = workerCmd
	workerCfg.Args = workerArgs
	workerCfg.WorkingDir = workerDir
	workerCfg.ReadinessPort = readinessPort
	ctrl := worker.NewProcessController(workerCfg)

	noRestart, _ := cmd.Flags().GetBool("no-restart-worker")

	engine := sync.New(store, locks, lead, ctrl, sync.Config{
		DBPath:                   cfg.DBPath,
		Host:                     cfg.NodeID,
		ThisNode:                 cfg.NodeID,
		AllowSecondaryPush:       cfg.Leadership.AllowSecondaryPush,
		AllowPrimaryPullOverride: cfg.Leadership.AllowPrimaryPullOverride,
		NoRestartWorker:          cfg.NoRestartWorker || noRestart,
		ForceLock:                cfg.Lock.Force,
		Retention: sync.RetentionConfig{
			MaxDays:  cfg.Retention.MaxDays,
			MaxCount: cfg.Retention.MaxCount,
		},
		OperationTimeout: 120 * time.Second,
	})

	return engine, project, nil
}
