package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	reqs []Request
}

func (f fakeSource) Heartbeats() []Request { return f.reqs }

func oneReq(req Request) fakeSource { return fakeSource{reqs: []Request{req}} }

func TestClient_PostsHeartbeatBody(t *testing.T) {
	var received Request
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "/agent/heartbeat", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-Membridge-Admin-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{OK: true, Role: "primary", CanonicalID: received.CanonicalID})
	}))
	defer srv.Close()

	obs := int64(42)
	src := oneReq(Request{
		NodeID:       "node-a",
		CanonicalID:  "proj",
		ObsCount:     &obs,
		DBSha:        "deadbeef",
		IPAddrs:      []string{"10.0.0.1"},
		AgentVersion: "test",
	})

	c := New(Config{ServerURL: srv.URL, AdminKey: "secret", Interval: 20 * time.Millisecond}, src)
	require.NoError(t, c.post(context.Background()))

	assert.Equal(t, "node-a", received.NodeID)
	assert.Equal(t, "proj", received.CanonicalID)
	assert.Equal(t, int64(42), *received.ObsCount)
	assert.NotEmpty(t, received.LastSeen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_PostReturnsErrorOnNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{OK: false})
	}))
	defer srv.Close()

	src := oneReq(Request{NodeID: "node-a", CanonicalID: "proj"})
	c := New(Config{ServerURL: srv.URL}, src)

	err := c.post(context.Background())
	assert.Error(t, err)
}

func TestClient_PostReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := oneReq(Request{NodeID: "node-a", CanonicalID: "proj"})
	c := New(Config{ServerURL: srv.URL}, src)

	err := c.post(context.Background())
	assert.Error(t, err)
}

func TestClient_StartStopRunsAndExits(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{OK: true})
	}))
	defer srv.Close()

	src := oneReq(Request{NodeID: "node-a", CanonicalID: "proj"})
	c := New(Config{ServerURL: srv.URL, Interval: 10 * time.Millisecond}, src)

	c.Start()
	time.Sleep(60 * time.Millisecond)
	c.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestClient_PostSendsOneRequestPerProject(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = append(received, req.ProjectID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{OK: true})
	}))
	defer srv.Close()

	src := fakeSource{reqs: []Request{
		{NodeID: "node-a", CanonicalID: "proj-a", ProjectID: "a"},
		{NodeID: "node-a", CanonicalID: "proj-b", ProjectID: "b"},
	}}
	c := New(Config{ServerURL: srv.URL}, src)

	require.NoError(t, c.post(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b"}, received)
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	assert.Equal(t, baseBackoff, nextBackoff(0))
	assert.Equal(t, baseBackoff*2, nextBackoff(baseBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff))
}
