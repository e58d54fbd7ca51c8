// Package eventbus is an in-process fanout for loop lifecycle signals.
//
// Publish never blocks: subscribers get buffered channels and slow ones
// drop events.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the watch loop and dispatcher.
const (
	TypeFetched     = "watcher.fetched"
	TypeSkew        = "watcher.skew"
	TypeUnchanged   = "watcher.unchanged"
	TypeFetchError  = "watcher.fetch_error"
	TypeDispatched  = "watcher.dispatched"
	TypeSent        = "dispatch.sent"
	TypeFailed      = "dispatch.failed"
	TypeConfigApply = "config.applied"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Removing under the write lock means no Publish holds ch.
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Consume calls fn for every event until ctx is done.
func Consume(ctx context.Context, b Bus, buffer int, fn func(Event)) {
	ch, unsub := b.Subscribe(buffer)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			fn(e)
		}
	}
}
