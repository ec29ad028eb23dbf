package controlplane

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxfraieho/membridge/pkg/jobs"
	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/log"
)

// Config holds the control plane's policy knobs.
type Config struct {
	AdminKey          string
	AgentKey          string
	HeartbeatInterval time.Duration
	Leadership        leadership.Config
}

// Server wires the control-plane HTTP surface: registry, job history,
// and leadership state, dispatching sync operations to agents over
// HTTP.
type Server struct {
	cfg        Config
	reg        *registry
	jobsStore  *jobs.Store
	leadStore  leadership.Store
	dispatcher *dispatcher
	startedAt  time.Time
}

// New builds a Server. leadStore backs the shared leadership lease
// read during heartbeats; jobsStore persists dispatched job history.
func New(cfg Config, leadStore leadership.Store, jobsStore *jobs.Store) *Server {
	return &Server{
		cfg:        cfg,
		reg:        newRegistry(),
		jobsStore:  jobsStore,
		leadStore:  leadStore,
		dispatcher: newDispatcher(cfg.AgentKey),
		startedAt:  time.Now().UTC(),
	}
}

// Router builds the chi router for this server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdminKey)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{name}", s.handleGetProject)
		r.Delete("/projects/{name}", s.handleDeleteProject)

		r.Get("/agents", s.handleListAgents)
		r.Post("/agents", s.handleCreateAgent)
		r.Get("/agents/{name}", s.handleGetAgent)
		r.Delete("/agents/{name}", s.handleDeleteAgent)

		r.Post("/sync/push", s.handleDispatch(jobActionPush))
		r.Post("/sync/pull", s.handleDispatch(jobActionPull))

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)

		r.Post("/agent/heartbeat", s.handleHeartbeat)

		r.Get("/projects/{cid}/nodes", s.handleListNodes)
		r.Get("/projects/{cid}/leadership", s.handleGetLeadership)
		r.Post("/projects/{cid}/leadership/select", s.handleSelectLeadership)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithComponent("controlplane").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
