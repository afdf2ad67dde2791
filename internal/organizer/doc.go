// Package organizer finalizes annotated items by writing their artifacts
// into the labeled dataset tree.
//
// Each save lands under `<dataset>/<label>/` as `<name>_mask.png`, an
// optional `<name>_gray.png`, and a JSON metadata sidecar. Label directories
// are created on demand and duplicate titles get numeric suffixes. Copies are
// hash-verified, progress updates and error wrapping follow the same
// conventions as the other stages so the workflow manager can react
// uniformly.
package organizer
