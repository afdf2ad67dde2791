// Package geometry parses untrusted prompt payloads (point seeds, boundary
// polygons) into canonical typed requests for the segmentation worker.
//
// Validation is strict and runs before any scratch resource or external
// process is touched: missing prompts, malformed structure, ambiguous labels,
// and out-of-bounds coordinates are each reported with a distinct,
// operator-readable reason. Canonical output uses integer pixel coordinates
// in the image's own space.
package geometry
