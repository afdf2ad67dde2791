// Package textutil provides text normalization and filename sanitization
// helpers shared by the queue metadata and CLI presentation layers.
package textutil
