// Package viewport maps between a letterboxed on-screen stage surface and
// the canonical pixel space of the displayed image.
//
// Mapping is pure arithmetic over an explicit Metrics value, so it needs no
// rendering surface and is trivially unit-testable. Metrics become stale the
// moment the stage is resized or the image changes; recomputing them then is
// the caller's responsibility.
package viewport
