// Package worker runs the external segmentation and grayscale processes.
//
// Each invocation owns a uniquely named scratch directory holding exactly
// one input and one output file; the directory is released on every exit
// path. The worker is an opaque file-in/file-out capability: parameters
// travel as flags plus base64 tokens of canonical JSON arrays, stdout is
// ignored, and stderr is the sole failure diagnostic. Any implementation
// honoring the argument contract can be substituted without touching the
// orchestration core.
package worker
