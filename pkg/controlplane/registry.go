package controlplane

import (
	"sort"
	"sync"
	"time"

	"github.com/maxfraieho/membridge/pkg/types"
)

// registry holds the control plane's in-memory view of projects,
// agents, node records, and the preferred-primary map. None of it
// survives a restart; only job history (pkg/jobs) and the agent-local
// project list do.
type registry struct {
	mu sync.RWMutex

	projects map[string]types.Project            // name -> project
	agents   map[string]types.Agent              // name -> agent
	nodes    map[string]types.NodeRecord         // canonicalID+"/"+nodeID -> record
	primary  map[string]string                   // canonicalID -> preferred node_id
}

func newRegistry() *registry {
	return &registry{
		projects: make(map[string]types.Project),
		agents:   make(map[string]types.Agent),
		nodes:    make(map[string]types.NodeRecord),
		primary:  make(map[string]string),
	}
}

func nodeKey(canonicalID, nodeID string) string {
	return canonicalID + "/" + nodeID
}

func (r *registry) putProject(p types.Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.Name] = p
}

func (r *registry) getProject(name string) (types.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	return p, ok
}

func (r *registry) deleteProject(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, name)
}

func (r *registry) listProjects() []types.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *registry) putAgent(a types.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name] = a
}

func (r *registry) getAgent(name string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

func (r *registry) deleteAgent(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

func (r *registry) listAgents() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// putNode upserts a node record from a heartbeat.
func (r *registry) putNode(rec types.NodeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[nodeKey(rec.CanonicalID, rec.NodeID)] = rec
}

// listNodes returns all node records for one project, newest-first.
func (r *registry) listNodes(canonicalID string) []types.NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.NodeRecord
	for _, rec := range r.nodes {
		if rec.CanonicalID == canonicalID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (r *registry) setPreferredPrimary(canonicalID, nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary[canonicalID] = nodeID
}

func (r *registry) preferredPrimary(canonicalID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.primary[canonicalID]
	return n, ok
}

func isStale(rec types.NodeRecord, heartbeatInterval time.Duration, now time.Time) bool {
	return heartbeatInterval > 0 && rec.Stale(now, heartbeatInterval)
}
