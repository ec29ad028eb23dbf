// Package controlplane implements membridge's control-plane HTTP
// surface: project and agent CRUD, sync dispatch to remote agents,
// job history, node records, and leadership selection.
//
// State is split the way the design calls for: projects, agents, node
// records, and the preferred-primary map live in memory and are lost
// on restart; job history is persisted via pkg/jobs. The control plane
// holds its own leadership.Manager against the shared object store so
// it can answer a heartbeat's role question and serve administrative
// primary selection without involving an agent round trip.
package controlplane
