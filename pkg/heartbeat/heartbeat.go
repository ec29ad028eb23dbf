package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/metrics"
)

const (
	requestTimeout = 10 * time.Second
	baseBackoff    = 2 * time.Second
	maxBackoff     = 60 * time.Second
)

// Request is the body posted to POST /agent/heartbeat.
type Request struct {
	NodeID      string   `json:"node_id"`
	CanonicalID string   `json:"canonical_id"`
	ProjectID   string   `json:"project_id,omitempty"`
	ObsCount    *int64   `json:"obs_count,omitempty"`
	DBSha       string   `json:"db_sha,omitempty"`
	LastSeen    string   `json:"last_seen,omitempty"`
	IPAddrs     []string `json:"ip_addrs"`
	AgentVersion string  `json:"agent_version"`
}

// Response is the control plane's reply.
type Response struct {
	OK          bool   `json:"ok"`
	Role        string `json:"role"`
	CanonicalID string `json:"canonical_id"`
}

// Source supplies the set of heartbeat requests to send on each tick:
// one per known project, or a single node-only request if none are
// known (spec §4.8). The agent's project registry implements this.
type Source interface {
	Heartbeats() []Request
}

// Config holds the heartbeat loop's target and cadence.
type Config struct {
	ServerURL string
	AdminKey  string
	Interval  time.Duration
}

// Client runs the heartbeat loop against one control plane for a
// Source.
type Client struct {
	cfg        Config
	source     Source
	httpClient *http.Client

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Client. Interval defaults to 10s if unset, matching the
// spec's HEARTBEAT_INTERVAL_SECONDS default.
func New(cfg Config, source Source) *Client {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		source:     source,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Start launches the heartbeat loop in the background.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.run(c.stopCh, c.doneCh)
}

// Stop cancels the loop and waits for it to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (c *Client) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	logger := log.WithComponent("heartbeat")

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	backoff := time.Duration(0)
	var retryAt time.Time

	post := func() {
		if err := c.post(context.Background()); err != nil {
			backoff = nextBackoff(backoff)
			retryAt = time.Now().Add(backoff)
			metrics.HeartbeatBackoffSeconds.Set(backoff.Seconds())
			metrics.HeartbeatsTotal.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("heartbeat post failed")
			return
		}
		if backoff > 0 {
			backoff = 0
			retryAt = time.Time{}
			metrics.HeartbeatBackoffSeconds.Set(0)
		}
		metrics.HeartbeatsTotal.WithLabelValues("ok").Inc()
	}

	post()
	for {
		select {
		case <-ticker.C:
			if time.Now().Before(retryAt) {
				continue
			}
			post()
		case <-stopCh:
			logger.Info().Msg("heartbeat loop stopped")
			return
		}
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return baseBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// post sends one heartbeat per request the source reports (spec
// §4.8: one per known project, or a single node-only request). It
// sends every request even if an earlier one fails, then returns the
// first error encountered.
func (c *Client) post(ctx context.Context) error {
	requests := c.source.Heartbeats()

	var firstErr error
	for _, req := range requests {
		if err := c.postOne(ctx, req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) postOne(ctx context.Context, req Request) error {
	if req.LastSeen == "" {
		req.LastSeen = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("heartbeat: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/agent/heartbeat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("heartbeat: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AdminKey != "" {
		httpReq.Header.Set("X-Membridge-Admin-Key", c.cfg.AdminKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("heartbeat: post: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: unexpected status %d: %s", resp.StatusCode, string(data))
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("heartbeat: decode response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("heartbeat: control plane reported not ok")
	}
	return nil
}
