/*
Package metrics provides Prometheus metrics collection and exposition for
membridge. Metrics are registered at package init and exposed over HTTP
for scraping by a Prometheus server.

# Metrics Catalog

Sync Metrics:

membridge_pushes_total{outcome}:
  - Type: Counter
  - Description: Total push attempts by outcome (uploaded, already_current,
    blocked_by_lock, blocked_by_secondary, integrity_failed, transport_failed)

membridge_pulls_total{outcome}:
  - Type: Counter
  - Description: Total pull attempts by outcome (replaced, up_to_date,
    blocked_by_primary, integrity_failed, transport_failed)

membridge_push_duration_seconds / membridge_pull_duration_seconds:
  - Type: Histogram
  - Description: Wall-clock duration of a push or pull attempt

Lock Metrics:

membridge_lock_stale_takeovers_total:
  - Type: Counter
  - Description: Total number of stale-lock takeovers performed after the
    grace window elapsed

membridge_lock_blocked_total:
  - Type: Counter
  - Description: Total number of push attempts refused because a live lock
    is held by another node

Leadership Metrics:

membridge_lease_epoch{canonical_id}:
  - Type: Gauge
  - Description: Current lease epoch as last observed by this node

membridge_role_is_primary{canonical_id}:
  - Type: Gauge
  - Description: Whether this node last determined itself primary (1) or
    secondary (0) for a project

Heartbeat Metrics:

membridge_heartbeats_total{result}:
  - Type: Counter
  - Description: Total heartbeats sent by result (ok, error)

membridge_heartbeat_backoff_seconds:
  - Type: Gauge
  - Description: Current heartbeat retry backoff in seconds, 0 when healthy

Control Plane API Metrics:

membridge_api_requests_total{route, status}:
  - Type: Counter
  - Description: Total control-plane API requests by route and status code

membridge_api_request_duration_seconds{route}:
  - Type: Histogram
  - Description: Control-plane API request duration by route

Job Metrics:

membridge_jobs_dispatched_total{action, status}:
  - Type: Counter
  - Description: Total sync jobs dispatched by action (push/pull) and
    terminal status

# Usage

	import "github.com/maxfraieho/membridge/pkg/metrics"

	metrics.PushesTotal.WithLabelValues("uploaded").Inc()

	timer := metrics.NewTimer()
	outcome, err := engine.Push(ctx, project)
	timer.ObserveDuration(metrics.PushDuration)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/heartbeat: heartbeat counters and backoff gauge
  - cmd/membridge: serves Handler on the metrics address
  - Prometheus: scrapes /metrics

The sync, lock, leadership, API and job metrics are registered and
exported, but no package in this repository updates them.

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicate
    registration, so metrics are guaranteed available before main() runs.

Label Discipline:
  - Labels stay low-cardinality (outcome, result, route, action, status);
    canonical_id labels are bounded by the number of projects an agent or
    control plane tracks, never by request or object count.

Timer Pattern:
  - Create a Timer at operation start, call ObserveDuration or
    ObserveDurationVec when the operation completes.
*/
package metrics
