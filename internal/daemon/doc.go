// Package daemon coordinates the long-running Treadmark process.
//
// It wires configuration, queue storage, the workflow manager, and the
// interactive annotation controller into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon exposes queue maintenance
// helpers, accepts image uploads, emits dependency health summaries, and
// serves the HTTP API used by annotation front ends and the log viewer.
//
// Keep orchestration logic here: individual workflow steps should live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
