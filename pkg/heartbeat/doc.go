/*
Package heartbeat runs the agent's periodic heartbeat task: POST
/agent/heartbeat on the control plane every HEARTBEAT_INTERVAL_SECONDS,
reporting this node's liveness and, for each project the Source lists,
its observation count and snapshot hash (one request per project; a
single node-only request when the Source lists none).

The loop is a long-lived task owned by the process lifetime; Stop
cancels and joins it. A failed post doubles the backoff (exponential),
capped at maxBackoff, reported via metrics.HeartbeatBackoffSeconds;
ticks that fall before the backoff has elapsed are skipped, and the
next successful post resets the backoff to zero.
*/
package heartbeat
