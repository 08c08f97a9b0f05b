// Package logging configures structured slog output for atelier and provides
// attribute helpers plus context-derived fields (account, run, step,
// correlation id) so every subsystem logs uniformly.
package logging
