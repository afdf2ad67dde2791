// Package ingest implements the workflow stage that turns an uploaded image
// into a staged queue item. It validates the upload (size cap, PNG/JPEG
// only), records intrinsic dimensions, copies the original bytes into the
// item's staging directory, and seeds the PNG working copy the interactive
// pipeline edits. The handler never touches item status; the workflow
// manager owns transitions.
package ingest
