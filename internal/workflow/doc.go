// Package workflow advances queue items through the autonomous processing
// lanes.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// items into the registered stage handlers while capturing progress and
// failure metadata. It also aggregates queue stats, calls stage health
// checks, and emits queue-level notifications when processing starts or
// completes.
//
// Two independent lanes run: ingest (pending uploads staged into editable
// items) and export (saved annotations written into the dataset tree). Each
// lane polls for items matching its statuses and processes them serially,
// so an export can run while new uploads are ingested. The interactive
// stages between the lanes are driven synchronously by the pipeline
// controller, not by this manager.
//
// Add new lifecycle stages by extending StageSet, updating the queue status
// enums, and teaching the manager how to transition items; this package is
// the authoritative home for that coordination logic.
package workflow
