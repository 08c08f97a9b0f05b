// Package main hosts the Atelier CLI entrypoint and command graph.
//
// The Cobra-based command tree manages accounts, sources, and per-account
// settings, queues and inspects pipeline runs, and scaffolds configuration.
// Commands operate directly on the run database; the daemon picks up queued
// runs in the background.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
