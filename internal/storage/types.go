package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrClosed        = errors.New("storage closed")
)

// StateStore reads and writes the last notified state key.
//
// ReadLastState returns "" with a nil error when nothing was stored yet.
type StateStore interface {
	ReadLastState(ctx context.Context) (string, error)
	WriteLastState(ctx context.Context, key string) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file" (default): Path is the state file
//   - "sqlite": Path is the database file
//   - "postgres": DSN is a libpq-style connection string or URL
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Name        string        // row key for shared databases; default "default"
	BusyTimeout time.Duration // sqlite only; 0 means default
}
