// Package services defines shared utilities consumed by the pipeline step
// handlers and the external provider clients.
//
// Key responsibilities:
//   - Context helpers that stamp account, run, step, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures carry a
//     consistent classification (configuration vs transient vs conflict),
//     which the lifecycle manager and CLI translate into outcomes.
package services
