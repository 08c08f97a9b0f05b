// Package preflight validates the environment before the daemon starts
// processing runs. Checks are cheap, run once at startup, and are also
// surfaced through the status command.
package preflight
