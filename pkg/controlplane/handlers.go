package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maxfraieho/membridge/pkg/leadership"
	"github.com/maxfraieho/membridge/pkg/log"
	"github.com/maxfraieho/membridge/pkg/types"
)

const (
	jobActionPush = types.JobActionPush
	jobActionPull = types.JobActionPull
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" || r.Header.Get("X-Membridge-Admin-Key") == s.cfg.AdminKey {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "missing or invalid admin key")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"projects":   len(s.reg.listProjects()),
		"agents":     len(s.reg.listAgents()),
	})
}

// --- Projects ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.listProjects())
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p := types.Project{
		Name:        body.Name,
		CanonicalID: types.CanonicalID(body.Name),
		CreatedAt:   time.Now().UTC(),
	}
	s.reg.putProject(p)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.reg.getProject(name)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	s.reg.deleteProject(chi.URLParam(r, "name"))
	w.WriteHeader(http.StatusNoContent)
}

// --- Agents ---

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.listAgents())
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" || body.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	a := types.Agent{Name: body.Name, URL: body.URL, Status: "offline", CreatedAt: time.Now().UTC()}
	s.reg.putAgent(a)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	a, ok := s.reg.getAgent(name)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	s.reg.deleteAgent(chi.URLParam(r, "name"))
	w.WriteHeader(http.StatusNoContent)
}

// --- Sync dispatch ---

func (s *Server) handleDispatch(action types.JobAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Project string `json:"project"`
			Agent   string `json:"agent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Project == "" || body.Agent == "" {
			writeError(w, http.StatusBadRequest, "project and agent are required")
			return
		}

		agent, ok := s.reg.getAgent(body.Agent)
		if !ok {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}

		canonicalID := types.CanonicalID(body.Project)
		path := "/sync/pull"
		if action == jobActionPush {
			path = "/sync/push"
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		started := time.Now().UTC()
		out, err := s.dispatcher.do(ctx, agent.URL, path, agentRequest{Project: body.Project})

		if err != nil {
			agent.Status = "offline"
			s.reg.putAgent(agent)
		} else {
			agent.Status = "online"
			s.reg.putAgent(agent)
		}

		rec := jobRecordFromDispatch(action, body.Project, body.Agent, canonicalID, started, out, err, middleware.GetReqID(r.Context()))
		if s.jobsStore != nil {
			if id, insertErr := s.jobsStore.Insert(r.Context(), rec); insertErr != nil {
				log.WithComponent("controlplane").Warn().Err(insertErr).Msg("job history insert failed")
			} else {
				rec.ID = id
			}
		}

		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"ok":    false,
				"error": err.Error(),
				"job":   rec,
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     out.OK,
			"kind":   out.Kind,
			"detail": out.Detail,
			"sha256": out.SHA256,
			"job":    rec,
		})
	}
}

// --- Jobs ---

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	recs, err := s.jobsStore.List(r.Context(), project, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	rec, err := s.jobsStore.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Heartbeat ---

type heartbeatRequest struct {
	NodeID       string   `json:"node_id"`
	CanonicalID  string   `json:"canonical_id"`
	ProjectID    string   `json:"project_id,omitempty"`
	ObsCount     *int64   `json:"obs_count,omitempty"`
	DBSha        string   `json:"db_sha,omitempty"`
	LastSeen     string   `json:"last_seen,omitempty"`
	IPAddrs      []string `json:"ip_addrs"`
	AgentVersion string   `json:"agent_version"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" || req.CanonicalID == "" {
		writeError(w, http.StatusBadRequest, "node_id and canonical_id are required")
		return
	}

	now := time.Now().UTC()
	lastSeen := now
	if req.LastSeen != "" {
		if t, err := time.Parse(time.RFC3339, req.LastSeen); err == nil {
			lastSeen = t
		}
	}

	leadCfg := s.cfg.Leadership
	if preferred, ok := s.reg.preferredPrimary(req.CanonicalID); ok {
		leadCfg.ConfiguredPrimary = preferred
	}
	mgr := leadership.NewManager(s.leadStore, req.NodeID, leadCfg)

	role, _, _, err := mgr.DetermineRole(r.Context(), req.CanonicalID)
	if err != nil {
		log.WithComponent("controlplane").Warn().Err(err).Str("node_id", req.NodeID).Msg("heartbeat role determination failed")
		role = types.RoleSecondary
	}

	s.reg.putNode(types.NodeRecord{
		NodeID:       req.NodeID,
		CanonicalID:  req.CanonicalID,
		Role:         role,
		ObsCount:     req.ObsCount,
		DBSha:        req.DBSha,
		LastSeen:     lastSeen,
		IPAddrs:      req.IPAddrs,
		RegisteredAt: now,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"role":         string(role),
		"canonical_id": req.CanonicalID,
	})
}

// --- Leadership ---

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	nodes := s.reg.listNodes(cid)
	now := time.Now().UTC()
	type nodeView struct {
		types.NodeRecord
		Stale bool `json:"stale"`
	}
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, nodeView{NodeRecord: n, Stale: isStale(n, s.cfg.HeartbeatInterval, now)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetLeadership(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	preferred, _ := s.reg.preferredPrimary(cid)
	writeJSON(w, http.StatusOK, map[string]any{
		"canonical_id":       cid,
		"preferred_primary":  preferred,
		"nodes":              s.reg.listNodes(cid),
	})
}

func (s *Server) handleSelectLeadership(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	var body struct {
		PrimaryNodeID string `json:"primary_node_id"`
		LeaseSeconds  int    `json:"lease_seconds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PrimaryNodeID == "" {
		writeError(w, http.StatusBadRequest, "primary_node_id is required")
		return
	}

	s.reg.setPreferredPrimary(cid, body.PrimaryNodeID)

	for _, n := range s.reg.listNodes(cid) {
		if n.NodeID == body.PrimaryNodeID {
			n.Role = types.RolePrimary
		} else {
			n.Role = types.RoleSecondary
		}
		s.reg.putNode(n)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"canonical_id":      cid,
		"preferred_primary": body.PrimaryNodeID,
	})
}
