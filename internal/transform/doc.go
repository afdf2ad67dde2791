// Package transform implements the pure geometric and photometric
// operations of the annotation pipeline: bounded cropping, the square
// resize/rotate/flip render, and destination-in mask compositing.
//
// Every operation allocates its result and leaves its inputs untouched, so
// identical inputs always produce identical outputs and re-invocation is
// safe. Grayscale filtering is not here; it belongs to the external worker.
package transform
