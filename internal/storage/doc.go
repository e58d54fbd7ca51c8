// Package storage persists the last notified state key.
//
// The key is the only state that survives a restart. Backends:
//   - "file":     a single text file replaced atomically (temp + fsync + rename)
//   - "sqlite":   a one-row table in a SQLite database
//   - "postgres": a keyed row in PostgreSQL, for deployments without local disk
package storage
