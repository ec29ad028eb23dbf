package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maxfraieho/membridge/pkg/types"
)

// agentRequest is the body POSTed to an agent's /sync/push or
// /sync/pull.
type agentRequest struct {
	Project         string `json:"project"`
	NoRestartWorker bool   `json:"no_restart_worker,omitempty"`
}

// agentResult is the agent's reply to a dispatched sync operation.
type agentResult struct {
	OK         bool   `json:"ok"`
	Kind       string `json:"kind"`
	ExitCode   int    `json:"exit_code"`
	Detail     string `json:"detail,omitempty"`
	SHA256     string `json:"sha256,omitempty"`
}

// dispatcher forwards push/pull requests to a named agent's HTTP
// surface and reports the outcome for the job record.
type dispatcher struct {
	httpClient *http.Client
	agentKey   string
}

func newDispatcher(agentKey string) *dispatcher {
	return &dispatcher{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		agentKey:   agentKey,
	}
}

// dispatchOutcome carries what the job row and HTTP response need.
type dispatchOutcome struct {
	agentResult
	StatusCode int
	RawBody    string
}

func (d *dispatcher) do(ctx context.Context, agentURL, path string, req agentRequest) (dispatchOutcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return dispatchOutcome{}, fmt.Errorf("dispatch: encode request: %w", err)
	}

	url := strings.TrimSuffix(agentURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dispatchOutcome{}, fmt.Errorf("dispatch: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.agentKey != "" {
		httpReq.Header.Set("X-Membridge-Agent-Key", d.agentKey)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return dispatchOutcome{}, fmt.Errorf("dispatch: %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	out := dispatchOutcome{StatusCode: resp.StatusCode, RawBody: string(data)}
	if err := json.Unmarshal(data, &out.agentResult); err != nil && resp.StatusCode < http.StatusInternalServerError {
		return out, fmt.Errorf("dispatch: decode response: %w", err)
	}
	return out, nil
}

// jobHistoryTailBytes bounds stdout/stderr stored per job history row to
// the last 4096 bytes per stream (spec §4.9).
const jobHistoryTailBytes = 4096

// tailBytes returns the last n bytes of s, unchanged if s is already
// within the limit.
func tailBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// jobRecordFromDispatch builds the job row for a completed (or failed)
// dispatch.
func jobRecordFromDispatch(action types.JobAction, project, agentName, canonicalID string, started time.Time, out dispatchOutcome, dispatchErr error, requestID string) types.JobRecord {
	rec := types.JobRecord{
		Action:      action,
		Project:     project,
		Agent:       agentName,
		CanonicalID: canonicalID,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
		RequestID:   requestID,
	}
	if dispatchErr != nil {
		rec.Status = "transport_error"
		rec.ReturnCode = 1
		rec.Stderr = tailBytes(dispatchErr.Error(), jobHistoryTailBytes)
		return rec
	}
	rec.ReturnCode = out.ExitCode
	rec.Stdout = tailBytes(out.RawBody, jobHistoryTailBytes)
	if out.OK {
		rec.Status = "ok"
	} else {
		rec.Status = out.Kind
		if rec.Status == "" {
			rec.Status = "failed"
		}
	}
	return rec
}
