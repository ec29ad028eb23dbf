package agentapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/maxfraieho/membridge/pkg/localdb"
	"github.com/maxfraieho/membridge/pkg/sync"
	"github.com/maxfraieho/membridge/pkg/types"
)

type syncAction string

const (
	actionPush syncAction = "push"
	actionPull syncAction = "pull"
)

type syncRequest struct {
	Project         string `json:"project"`
	NoRestartWorker bool   `json:"no_restart_worker,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if project == "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projects": s.listRegistry()})
		return
	}

	entry, err := s.reg.Get(project)
	if err != nil {
		writeError(w, http.StatusNotFound, "project not known to this agent")
		return
	}

	status := map[string]any{
		"ok":           true,
		"project":      project,
		"canonical_id": entry.CanonicalID,
		"last_seen":    entry.LastSeen,
	}
	if entry.Path != "" {
		if hash, err := localdb.Hash(entry.Path); err == nil {
			status["local_sha256"] = hash
		}
		if counts, err := localdb.Counts(entry.Path); err == nil {
			status["local_counts"] = counts
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listRegistry() []types.ProjectEntry {
	entries, err := s.reg.List()
	if err != nil {
		return nil
	}
	return entries
}

func (s *Server) handleSync(action syncAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Project == "" {
			writeError(w, http.StatusBadRequest, "project is required")
			return
		}

		engine, err := s.engines(req.Project)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
		defer cancel()

		if action == actionPush {
			s.respondPush(w, ctx, engine, req.Project)
			return
		}
		s.respondPull(w, ctx, engine, req.Project)
	}
}

func (s *Server) respondPush(w http.ResponseWriter, ctx context.Context, engine *sync.Engine, project string) {
	outcome, err := engine.Push(ctx, project)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok": false, "kind": "error", "exit_code": 1, "detail": err.Error(),
		})
		return
	}
	s.touchRegistry(project, outcome.SHA256, outcome.Observations)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        outcome.Kind == sync.PushUploaded || outcome.Kind == sync.PushAlreadyCurrent,
		"kind":      string(outcome.Kind),
		"exit_code": outcome.ExitCode(),
		"detail":    outcome.Detail,
		"sha256":    outcome.SHA256,
	})
}

func (s *Server) respondPull(w http.ResponseWriter, ctx context.Context, engine *sync.Engine, project string) {
	outcome, err := engine.Pull(ctx, project)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok": false, "kind": "error", "exit_code": 1, "detail": err.Error(),
		})
		return
	}
	s.touchRegistry(project, outcome.SHA256, 0)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        outcome.Kind == sync.PullReplaced || outcome.Kind == sync.PullUpToDate,
		"kind":      string(outcome.Kind),
		"exit_code": outcome.ExitCode(),
		"detail":    outcome.Detail,
		"sha256":    outcome.SHA256,
	})
}

// touchRegistry refreshes last_seen/db_sha/obs_count for a project
// after a successful dispatch. Failures are logged, never surfaced —
// this is observability, not correctness state.
func (s *Server) touchRegistry(project, sha string, obsCount int64) {
	entry, err := s.reg.Get(project)
	if err != nil {
		return
	}
	entry.LastSeen = time.Now().UTC()
	if sha != "" {
		entry.DBSha = sha
	}
	if obsCount > 0 {
		entry.ObsCount = &obsCount
	}
	if err := s.reg.Put(entry); err != nil {
		logger.Warn().Err(err).Str("project", project).Msg("registry touch failed")
	}
}

func (s *Server) handleDoctor(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Project == "" {
		writeError(w, http.StatusBadRequest, "project is required")
		return
	}

	if _, err := s.reg.Get(req.Project); err != nil {
		writeError(w, http.StatusNotFound, "project not known to this agent")
		return
	}

	engine, err := s.engines(req.Project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	report, err := engine.Doctor(ctx, req.Project)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": report.IntegrityOK, "report": report})
}

func (s *Server) handleRegisterProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string `json:"project_id"`
		Path      string `json:"path,omitempty"`
		Notes     string `json:"notes,omitempty"`
		RepoURL   string `json:"repo_url,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	now := time.Now().UTC()
	entry := types.ProjectEntry{
		ProjectID:   body.ProjectID,
		CanonicalID: types.CanonicalID(body.ProjectID),
		CreatedAt:   now,
		LastSeen:    now,
		Path:        body.Path,
		Notes:       body.Notes,
		RepoURL:     body.RepoURL,
	}
	if existing, err := s.reg.Get(body.ProjectID); err == nil {
		entry.CreatedAt = existing.CreatedAt
	}

	if err := s.reg.Put(entry); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listRegistry())
}
