/*
Package worker controls the external worker daemon that holds the
project's snapshot database file open for writes. It is modeled as a
narrow capability — PID, Stop, Start, WaitReady — so the sync engine
can be tested against an in-memory fake instead of spawning real
processes.

Stop sends a graceful termination signal, polls liveness every 100ms
for up to 5 seconds, and escalates to a forceful kill if the process
is still alive. Start spawns the worker fully detached (new session,
standard streams redirected) and records its pid; it does not wait for
readiness. WaitReady polls the worker's HTTP readiness endpoint for up
to 15 seconds and fails fast if the process exits first.
*/
package worker
