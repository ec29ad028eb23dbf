package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/maxfraieho/membridge/internal/config"
	"github.com/maxfraieho/membridge/pkg/controlplane"
	"github.com/maxfraieho/membridge/pkg/jobs"
	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/metrics"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Run the control plane: project/agent registry, job dispatch, leadership selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := log.WithComponent("control")

		addr, _ := cmd.Flags().GetString("addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		metrics.SetVersion(Version)
		leadStore, err := objectstore.New(objectstore.Config{
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

		jobsStore, err := jobs.Open(filepath.Join(dataDir, "jobs.db"))
		if err != nil {
			return fmt.Errorf("open job history store: %w", err)
		}
		defer jobsStore.Close()

		srv := controlplane.New(controlplane.Config{
			AdminKey:          cfg.AdminKey,
			AgentKey:          cfg.AgentKey,
			HeartbeatInterval: cfg.HeartbeatInterval,
			Leadership: leadership.Config{
				Enabled:           cfg.Leadership.Enabled,
				LeaseSeconds:      cfg.Leadership.LeaseSeconds,
				ConfiguredPrimary: cfg.Leadership.ConfiguredPrimary,
			},
		}, leadStore, jobsStore)

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Router(),
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
		metrics.RegisterComponent("jobstore", true, "")

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", addr).Msg("control plane listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		go func() {
			logger.Info().Str("addr", metricsAddr).Msg("control plane metrics listening")
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
			return fmt.Errorf("control plane server error: %w", err)
		}

		_ = metricsSrv.Close()
		return httpSrv.Close()
	},
}

func init() {
	controlCmd.Flags().String("addr", "0.0.0.0:8090", "HTTP listen address")
	controlCmd.Flags().String("metrics-addr", "0.0.0.0:9090", "HTTP listen address for /metrics, /health, /ready, /live")
	controlCmd.Flags().String("data-dir", "./membridge-control-data", "Directory for job history SQLite database")
}
