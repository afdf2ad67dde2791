// Package services defines shared utilities consumed by the pipeline
// controller, the workflow stage handlers, and the external worker
// integration.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage names, worker kinds,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent queue statuses (failed vs needs-review).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
