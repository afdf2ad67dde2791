// Package pipeline drives the interactive annotation stages between ingest
// and export.
//
// The Controller holds one session per item under edit. A session caches the
// pixel buffers derived from the original upload (crop, mask, normalize
// pair, grayscale) and the State record of which operations produced them.
// Forward operations replace their product and drop everything downstream;
// backward moves keep all products so returning forward is cheap. Worker
// products are persisted beside the original in the item's staging
// directory, deterministic ones are replayed from State, so a daemon restart
// resumes editing without losing work.
//
// Every operation re-reads the item row, enforces the stage guard, applies
// its effect, and persists row and session state together. A failed
// operation persists nothing, which keeps the on-disk view consistent with
// what the operator last saw succeed.
package pipeline
