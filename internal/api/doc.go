// Package api defines the transport-neutral DTOs shared by the HTTP API,
// the IPC surface, and the CLI, plus converters from queue records.
//
// QueueItem: camelCase queue entry representation.
// DaemonStatus/WorkflowStatus/StageHealth: daemon runtime reporting.
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
// QueueService: read-only queue queries returning DTOs.
package api
