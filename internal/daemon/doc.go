// Package daemon wires the store, step handlers, worker, and trigger
// scheduler into a single background process, and enforces single-instance
// execution with a lock file.
package daemon
