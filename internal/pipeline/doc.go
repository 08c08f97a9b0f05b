// Package pipeline executes the fixed content-production workflow for an
// account: scrape, validate, describe, generate, caption, schedule. The
// engine persists per-step progress so an interrupted run can be inspected
// and a fresh run resumes from whatever the database already holds.
package pipeline
