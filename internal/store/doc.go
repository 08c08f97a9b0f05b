// Package store manages workflow persistence backed by SQLite. It records
// accounts, their sources and settings, pipeline runs with their per-step
// history, scraped items, and scheduled posts.
package store
