// Package agentapi implements the agent's HTTP surface: health and
// status diagnostics, sync dispatch (push/pull/doctor, with /pull and
// /push aliases), and the local project registry endpoints
// (register_project, projects).
//
// Every non-health route is protected by a shared agent header, except
// register_project and projects which are exempt for callers on
// localhost — the loopback-only local CLI doesn't carry the header.
package agentapi
