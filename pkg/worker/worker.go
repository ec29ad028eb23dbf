package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/maxfraieho/membridge/pkg/health"
	"github.com/maxfraieho/membridge/pkg/log"
)

// Controller is the narrow capability the sync engine depends on:
// pid, stop, start, wait_ready, so tests can substitute an in-memory
// fake instead of spawning a real process.
type Controller interface {
	// PID returns the recorded process id and whether it currently
	// exists.
	PID() (pid int, exists bool, err error)
	// Stop requests graceful termination, escalating to a forceful
	// kill, and reports whether a running worker was stopped.
	Stop(ctx context.Context) (stopped bool, err error)
	// Start spawns the worker fully detached. It does not wait for
	// readiness; callers that need that call WaitReady.
	Start(ctx context.Context) error
	// WaitReady polls the worker's readiness endpoint until it answers
	// 200, the process exits, or the timeout elapses.
	WaitReady(ctx context.Context) error
}

// Config describes how to locate, spawn, and probe the worker.
type Config struct {
	PIDFile       string
	Command       string
	Args          []string
	WorkingDir    string
	ReadinessPort int
	ReadinessPath string // defaults to /api/readiness

	GracefulWindow    time.Duration // default 5s
	LivenessPoll      time.Duration // default 100ms
	ReadinessTimeout  time.Duration // default 15s
}

// DefaultConfig fills in the spec's fixed timing constants.
func DefaultConfig() Config {
	return Config{
		ReadinessPath:    "/api/readiness",
		GracefulWindow:   5 * time.Second,
		LivenessPoll:     100 * time.Millisecond,
		ReadinessTimeout: 15 * time.Second,
	}
}

// ProcessController is the real worker.Controller backed by an OS
// process and a pidfile.
type ProcessController struct {
	cfg Config

	mu     sync.Mutex
	exited chan error // set by the most recent Start, consumed by WaitReady
}

// NewProcessController builds a Controller for cfg.
func NewProcessController(cfg Config) *ProcessController {
	if cfg.ReadinessPath == "" {
		cfg.ReadinessPath = "/api/readiness"
	}
	if cfg.GracefulWindow == 0 {
		cfg.GracefulWindow = 5 * time.Second
	}
	if cfg.LivenessPoll == 0 {
		cfg.LivenessPoll = 100 * time.Millisecond
	}
	if cfg.ReadinessTimeout == 0 {
		cfg.ReadinessTimeout = 15 * time.Second
	}
	return &ProcessController{cfg: cfg}
}

// PID reads the recorded process id from the pidfile and checks it is
// alive via a zero-signal probe.
func (c *ProcessController) PID() (int, bool, error) {
	data, err := os.ReadFile(c.cfg.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("worker: read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("worker: malformed pidfile %s: %w", c.cfg.PIDFile, err)
	}

	return pid, processAlive(pid), nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes existence
	// without affecting the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Stop sends SIGTERM, polls liveness for GracefulWindow, and escalates
// to SIGKILL if the worker is still alive. Returns false if no worker
// was running.
func (c *ProcessController) Stop(ctx context.Context) (bool, error) {
	logger := log.WithComponent("worker")

	pid, alive, err := c.PID()
	if err != nil {
		return false, err
	}
	if !alive {
		return false, nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("worker: find process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return false, fmt.Errorf("worker: send SIGTERM to %d: %w", pid, err)
	}

	deadline := time.Now().Add(c.cfg.GracefulWindow)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.cfg.LivenessPoll):
		}
	}

	if processAlive(pid) {
		logger.Warn().Int("pid", pid).Msg("worker did not exit gracefully, sending SIGKILL")
		if err := proc.Signal(syscall.SIGKILL); err != nil {
			return false, fmt.Errorf("worker: send SIGKILL to %d: %w", pid, err)
		}
	}
	return true, nil
}

// Start spawns the worker fully detached (new session, standard
// streams redirected) and records its pid. It does not wait for
// readiness; call WaitReady for that.
func (c *ProcessController) Start(ctx context.Context) error {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.WorkingDir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("worker: start: %w", err)
	}

	if err := os.WriteFile(c.cfg.PIDFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		return fmt.Errorf("worker: write pidfile: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	c.mu.Lock()
	c.exited = exited
	c.mu.Unlock()

	return nil
}

// WaitReady polls the worker's readiness endpoint until it answers
// 200, the most recently started process exits first, or
// ReadinessTimeout elapses. If no Start has registered an exit
// channel, WaitReady still polls the endpoint (useful against a
// worker this controller did not itself spawn).
func (c *ProcessController) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	exited := c.exited
	c.mu.Unlock()
	if exited == nil {
		exited = make(chan error)
	}

	pid, _, _ := c.PID()

	url := fmt.Sprintf("http://127.0.0.1:%d%s", c.cfg.ReadinessPort, c.cfg.ReadinessPath)
	checker := health.NewHTTPChecker(url).WithTimeout(2 * time.Second).WithStatusRange(200, 200)

	deadline := time.Now().Add(c.cfg.ReadinessTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			return fmt.Errorf("worker: process %d exited before becoming ready: %v", pid, err)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if checker.Check(ctx).Healthy {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("worker: process %d did not become ready within %s", pid, c.cfg.ReadinessTimeout)
			}
		}
	}
}
