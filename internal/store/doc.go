// Package store provides durable SQLite-backed storage for lexicons,
// records, backfill jobs and admin credentials.
//
// The store is deliberately thin: it persists and retrieves values but
// performs no schema validation, key generation or content addressing.
// That logic lives in the engine package, which composes a Store with a
// lexicon registry.
//
// SQLite is opened with WAL mode and a single writer connection, so
// callers can share one Store across goroutines without coordinating
// writes themselves.
package store
