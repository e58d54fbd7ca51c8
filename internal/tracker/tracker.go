// Package tracker gates notifications on state transitions.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"sillyreader/internal/status"
	"sillyreader/internal/storage"
	logx "sillyreader/pkg/logx"
)

// Tracker holds the last notified state key in memory and mirrors it to a
// StateStore. Only the watch loop mutates it.
type Tracker struct {
	store storage.StateStore
	log   logx.Logger

	mu   sync.RWMutex
	last string
}

func New(store storage.StateStore, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{store: store, log: log.With(logx.String("comp", "tracker"))}
}

// Load reads the persisted key. A missing key loads as "".
func (t *Tracker) Load(ctx context.Context) error {
	key, err := t.store.ReadLastState(ctx)
	if err != nil {
		return fmt.Errorf("load last state: %w", err)
	}
	t.mu.Lock()
	t.last = key
	t.mu.Unlock()
	t.log.Info("last state loaded", logx.String("key", key))
	return nil
}

// Last returns the in-memory key.
func (t *Tracker) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// IsNovel reports whether st differs from the last notified state.
func (t *Tracker) IsNovel(st status.Status) bool {
	return st.Key() != t.Last()
}

// Commit records st as notified. The in-memory key advances even when the
// durable write fails, so a broken store does not re-announce the same
// state every cycle; the error is still returned for logging.
func (t *Tracker) Commit(ctx context.Context, st status.Status) error {
	key := st.Key()
	t.mu.Lock()
	prev := t.last
	t.last = key
	t.mu.Unlock()

	if err := t.store.WriteLastState(ctx, key); err != nil {
		t.log.Warn("persist last state failed", logx.String("key", key), logx.Err(err))
		return fmt.Errorf("commit %q: %w", key, err)
	}
	t.log.Debug("state committed", logx.String("from", prev), logx.String("to", key))
	return nil
}
