// Package jobs persists the control plane's dispatched push/pull job
// history to a local SQLite database, one row per dispatch, so that
// GET /jobs and GET /jobs/{id} can serve history after a restart.
package jobs
