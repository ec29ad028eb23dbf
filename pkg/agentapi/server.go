package agentapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/registry"
	"github.com/maxfraieho/membridge/pkg/sync"
)

// EngineFactory builds a sync.Engine for one project, using the
// agent's own per-project worker controller and local db path. Agents
// know their on-disk layout; the server asks for an engine rather than
// owning construction details itself.
type EngineFactory func(projectName string) (*sync.Engine, error)

// Config holds the agent HTTP surface's policy knobs.
type Config struct {
	AgentKey          string
	DefaultDBPath     string
}

// Server is the agent's HTTP surface: health/status diagnostics, sync
// dispatch, and the local project registry.
type Server struct {
	cfg     Config
	engines EngineFactory
	reg     *registry.Store
	startedAt time.Time
}

// New builds a Server. engines constructs a sync.Engine for a given
// project name on demand; reg is the local project registry.
func New(cfg Config, engines EngineFactory, reg *registry.Store) *Server {
	return &Server{cfg: cfg, engines: engines, reg: reg, startedAt: time.Now().UTC()}
}

// Router builds the chi router for this server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAgentKey)
		r.Get("/status", s.handleStatus)
		r.Post("/sync/push", s.handleSync(actionPush))
		r.Post("/sync/pull", s.handleSync(actionPull))
		r.Post("/push", s.handleSync(actionPush))
		r.Post("/pull", s.handleSync(actionPull))
		r.Post("/doctor", s.handleDoctor)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAgentKeyOrLocalhost)
		r.Post("/register_project", s.handleRegisterProject)
		r.Get("/projects", s.handleListProjects)
	})

	return r
}

func (s *Server) requireAgentKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AgentKey == "" || r.Header.Get("X-Membridge-Agent-Key") == s.cfg.AgentKey {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "missing or invalid agent key")
	})
}

func (s *Server) requireAgentKeyOrLocalhost(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLocalhost(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		s.requireAgentKey(next).ServeHTTP(w, r)
	})
}

func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return strings.HasPrefix(host, "127.") || host == "::1" || host == "localhost"
	}
	return ip.IsLoopback()
}

var logger = log.WithComponent("agentapi")
