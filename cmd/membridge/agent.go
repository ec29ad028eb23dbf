package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxfraieho/membridge/internal/config"
	"github.com/maxfraieho/membridge/pkg/agentapi"
	"github.com/maxfraieho/membridge/pkg/heartbeat"
	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/lock"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/metrics"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/registry"
	"github.com/maxfraieho/membridge/pkg/sync"
	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/maxfraieho/membridge/pkg/worker"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the agent: HTTP sync surface, local project registry, heartbeat client",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := log.WithComponent("agent")

		addr, _ := cmd.Flags().GetString("addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		metrics.SetVersion(Version)
		reg, err := registry.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open project registry: %w", err)
		}
		defer reg.Close()

		store, err := objectstore.New(objectstore.Config{
			Endpoint:  cfg.Store.Endpoint,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey,
			Bucket:    cfg.Store.Bucket,
			Region:    cfg.Store.Region,
			UseSSL:    cfg.Store.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("build object store client: %w", err)
		}

		factory := newEngineFactory(cmd, cfg, store, reg)

		apiSrv := agentapi.New(agentapi.Config{
			AgentKey:      cfg.AgentKey,
			DefaultDBPath: cfg.DBPath,
		}, factory, reg)

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           apiSrv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsMux.HandleFunc("/health", metrics.HealthHandler())
		metricsMux.HandleFunc("/ready", metrics.ReadyHandler())
		metricsMux.HandleFunc("/live", metrics.LivenessHandler())
		metricsSrv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		metrics.RegisterComponent("objectstore", true, "")

		var hb *heartbeat.Client
		if cfg.ServerURL != "" {
			hb = heartbeat.New(heartbeat.Config{
				ServerURL: cfg.ServerURL,
				AdminKey:  cfg.AdminKey,
				Interval:  cfg.HeartbeatInterval,
			}, registrySource{reg: reg, nodeID: cfg.NodeID, version: Version})
			hb.Start()
			defer hb.Stop()
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", addr).Msg("agent listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		go func() {
			logger.Info().Str("addr", metricsAddr).Msg("agent metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			return fmt.Errorf("agent server error: %w", err)
		}

		_ = metricsSrv.Close()
		return httpSrv.Close()
	},
}

func init() {
	agentCmd.Flags().String("addr", "0.0.0.0:8091", "HTTP listen address")
	agentCmd.Flags().String("metrics-addr", "0.0.0.0:9091", "HTTP listen address for /metrics, /health, /ready, /live")
	agentCmd.Flags().String("data-dir", "./membridge-agent-data", "Directory for the local project registry")
	syncFlags(agentCmd)
}

// newEngineFactory builds an agentapi.EngineFactory that constructs one
// Engine per project, reading its local DB path from the registry.
func newEngineFactory(cmd *cobra.Command, cfg config.Config, store *objectstore.Client, reg *registry.Store) agentapi.EngineFactory {
	pidfile, _ := cmd.Flags().GetString("pidfile")
	workerCmd, _ := cmd.Flags().GetString("worker-command")
	workerArgs, _ := cmd.Flags().GetStringSlice("worker-args")
	workerDir, _ := cmd.Flags().GetString("worker-dir")
	readinessPort, _ := cmd.Flags().GetInt("worker-readiness-port")
	noRestart, _ := cmd.Flags().GetBool("no-restart-worker")

	return func(project string) (*sync.Engine, error) {
		entry, err := reg.Get(project)
		if err != nil {
			return nil, fmt.Errorf("project %q is not registered with this agent: %w", project, err)
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

		workerCfg := worker.DefaultConfig()
		workerCfg.PIDFile = pidfile
		workerCfg.Command = workerCmd
		workerCfg.Args = workerArgs
		workerCfg.WorkingDir = workerDir
		workerCfg.ReadinessPort = readinessPort
		ctrl := worker.NewProcessController(workerCfg)

		return sync.New(store, locks, lead, ctrl, sync.Config{
			DBPath:                   entry.Path,
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
		}), nil
	}
}

// registrySource adapts the agent's project registry into a
// heartbeat.Source: one request per known project, or a single
// node-only request if none are registered yet (spec §4.8).
type registrySource struct {
	reg     *registry.Store
	nodeID  string
	version string
}

func (s registrySource) Heartbeats() []heartbeat.Request {
	entries, err := s.reg.List()
	if err != nil || len(entries) == 0 {
		return []heartbeat.Request{{
			NodeID:       s.nodeID,
			CanonicalID:  types.CanonicalID("node:" + s.nodeID),
			IPAddrs:      localIPAddrs(),
			AgentVersion: s.version,
		}}
	}

	requests := make([]heartbeat.Request, 0, len(entries))
	for _, entry := range entries {
		requests = append(requests, heartbeat.Request{
			NodeID:       s.nodeID,
			CanonicalID:  entry.CanonicalID,
			ProjectID:    entry.ProjectID,
			ObsCount:     entry.ObsCount,
			DBSha:        entry.DBSha,
			IPAddrs:      localIPAddrs(),
			AgentVersion: s.version,
		})
	}
	return requests
}

func localIPAddrs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		ips = append(ips, ipNet.IP.String())
	}
	return ips
}
