package agentapi

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/lock"
	"github.com/maxfraieho/membridge/pkg/objectstore"
	"github.com/maxfraieho/membridge/pkg/registry"
	"github.com/maxfraieho/membridge/pkg/sync"
	"github.com/maxfraieho/membridge/pkg/types"
	"github.com/maxfraieho/membridge/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T, path string, observations int) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE observations (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE session_summaries (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE user_prompts (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	for i := 0; i < observations; i++ {
		_, err = db.Exec(`INSERT INTO observations (body) VALUES (?)`, "obs")
		require.NoError(t, err)
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *registry.Store) {
	t.Helper()
	store := objectstore.NewMemStore()
	reg, err := registry.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	factory := func(project string) (*sync.Engine, error) {
		entry, err := reg.Get(project)
		if err != nil {
			return nil, err
		}
		locks := lock.NewManager(store, lock.DefaultConfig())
		lead := leadership.NewManager(store, "node-a", leadership.DefaultConfig())
		ctrl := worker.NewFakeController()
		return sync.New(store, locks, lead, ctrl, sync.Config{
			DBPath: entry.Path, Host: "node-a", ThisNode: "node-a",
			Retention: sync.RetentionConfig{MaxDays: 30, MaxCount: 10},
		}), nil
	}

	s := New(Config{AgentKey: "agent-secret"}, factory, reg)
	httpSrv := httptest.NewServer(s.Router())
	t.Cleanup(httpSrv.Close)
	return s, httpSrv, reg
}

func authedPost(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Membridge-Agent-Key", "agent-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealth_IsOpen(t *testing.T) {
	_, srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncPush_RequiresAgentKey(t *testing.T) {
	_, srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/sync/push", "application/json", bytes.NewReader([]byte(`{"project":"demo"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSyncPush_UploadsAndUpdatesRegistry(t *testing.T) {
	_, srv, reg := newTestServer(t)

	dbPath := filepath.Join(t.TempDir(), "claude-mem.db")
	newTestDB(t, dbPath, 5)
	require.NoError(t, reg.Put(types.ProjectEntry{ProjectID: "demo", CanonicalID: types.CanonicalID("demo"), Path: dbPath}))

	resp := authedPost(t, srv, "/sync/push", map[string]string{"project": "demo"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "uploaded", out["kind"])
	assert.NotEmpty(t, out["sha256"])

	entry, err := reg.Get("demo")
	require.NoError(t, err)
	assert.Equal(t, out["sha256"], entry.DBSha)
}

func TestRegisterProject_ExemptOnLocalhostWithoutKey(t *testing.T) {
	_, srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/register_project", "application/json", bytes.NewReader([]byte(`{"project_id":"demo2"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	// httptest.Server listens on 127.0.0.1, so this request originates
	// from localhost and is exempt from the agent-key requirement.
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDoctor_ReportsIntegrity(t *testing.T) {
	_, srv, reg := newTestServer(t)

	dbPath := filepath.Join(t.TempDir(), "claude-mem.db")
	newTestDB(t, dbPath, 1)
	require.NoError(t, reg.Put(types.ProjectEntry{ProjectID: "demo", CanonicalID: types.CanonicalID("demo"), Path: dbPath}))

	resp := authedPost(t, srv, "/doctor", map[string]string{"project": "demo"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["ok"])
	report, ok := out["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", report["integrity"])
}
