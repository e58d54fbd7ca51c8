package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeFetched})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeFetched || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
		default:
			t.Fatal("subscriber missed event")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"}) // must not block
	if e := <-ch; e.Type != "one" {
		t.Fatalf("got %s", e.Type)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	b.Publish(Event{Type: "after"})
}

func TestConsume(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Consume(ctx, b, 4, func(e Event) { got <- e.Type })
	}()

	deadline := time.After(time.Second)
	for {
		b.Publish(Event{Type: TypeSkew})
		select {
		case typ := <-got:
			if typ != TypeSkew {
				t.Fatalf("got %s", typ)
			}
			cancel()
			<-done
			return
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("Consume never delivered")
		}
	}
}
