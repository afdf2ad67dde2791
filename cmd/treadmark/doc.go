// Package main hosts the Treadmark CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon, queue maintenance operations, log tailing, one-shot
// worker runs, and configuration scaffolding. It centralizes configuration
// resolution, socket discovery, and output rendering so subcommands can focus
// on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
