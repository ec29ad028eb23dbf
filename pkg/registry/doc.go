// Package registry is the agent's local record of known projects,
// backed by BoltDB. It answers GET /projects and POST /register_project
// on the agent HTTP surface and supplies obs_count/db_sha for
// heartbeats.
package registry
