package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/maxfraieho/membridge/pkg/jobs"
	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store := objectstore.NewMemStore()
	jobsStore, err := jobs.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jobsStore.Close() })

	s := New(Config{
		AdminKey:   "admin-secret",
		AgentKey:   "agent-secret",
		Leadership: leadership.DefaultConfig(),
	}, store, jobsStore)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func authedGet(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Membridge-Admin-Key", "admin-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func authedPost(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Membridge-Admin-Key", "admin-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealth_IsOpenWithoutAuth(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProjects_RequireAdminKey(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/projects")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProjects_CreateListGetDelete(t *testing.T) {
	_, srv := newTestServer(t)

	resp := authedPost(t, srv, "/projects", map[string]string{"name": "demo"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = authedGet(t, srv, "/projects")
	defer resp.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)

	resp = authedGet(t, srv, "/projects/demo")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/projects/demo", nil)
	req.Header.Set("X-Membridge-Admin-Key", "admin-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHeartbeat_BootstrapsRoleAndRecordsNode(t *testing.T) {
	_, srv := newTestServer(t)

	resp := authedPost(t, srv, "/agent/heartbeat", heartbeatRequest{
		NodeID:       "node-a",
		CanonicalID:  "abc123",
		IPAddrs:      []string{"10.0.0.1"},
		AgentVersion: "test",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "primary", out["role"])

	resp = authedGet(t, srv, "/projects/abc123/nodes")
	defer resp.Body.Close()
	var nodes []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-a", nodes[0]["node_id"])
}

func TestLeadershipSelect_UpdatesPreferredPrimaryAndNodeRoles(t *testing.T) {
	_, srv := newTestServer(t)

	for _, node := range []string{"node-a", "node-b"} {
		resp := authedPost(t, srv, "/agent/heartbeat", heartbeatRequest{
			NodeID: node, CanonicalID: "proj1", IPAddrs: []string{"10.0.0.1"}, AgentVersion: "test",
		})
		resp.Body.Close()
	}

	resp := authedPost(t, srv, "/projects/proj1/leadership/select", map[string]any{"primary_node_id": "node-b"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = authedGet(t, srv, "/projects/proj1/leadership")
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "node-b", out["preferred_primary"])
}

func TestDispatch_ReturnsBadGatewayWhenAgentUnreachable(t *testing.T) {
	_, srv := newTestServer(t)

	resp := authedPost(t, srv, "/agents", map[string]string{"name": "node-a", "url": "http://127.0.0.1:1"})
	resp.Body.Close()

	resp = authedPost(t, srv, "/sync/push", map[string]string{"project": "demo", "agent": "node-a"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestDispatch_UnknownAgentIsNotFound(t *testing.T) {
	_, srv := newTestServer(t)
	resp := authedPost(t, srv, "/sync/push", map[string]string{"project": "demo", "agent": "missing"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobs_ListAfterDispatch(t *testing.T) {
	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "kind": "uploaded", "exit_code": 0, "sha256": "abc"})
	}))
	defer agentSrv.Close()

	_, srv := newTestServer(t)
	resp := authedPost(t, srv, "/agents", map[string]string{"name": "node-a", "url": agentSrv.URL})
	resp.Body.Close()

	resp = authedPost(t, srv, "/sync/push", map[string]string{"project": "demo", "agent": "node-a"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = authedGet(t, srv, "/jobs?project=demo")
	defer resp.Body.Close()
	var jobsOut []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobsOut))
	require.Len(t, jobsOut, 1)
	assert.Equal(t, "ok", jobsOut[0]["status"])
}
