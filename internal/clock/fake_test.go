package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	ch := c.After(10 * time.Second)
	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}
	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(10 * time.Second)) {
			t.Fatalf("fired at %v", got)
		}
	default:
		t.Fatal("did not fire")
	}
	if c.Waiters() != 0 {
		t.Fatalf("Waiters() = %d, want 0", c.Waiters())
	}
}

func TestSleepUntilWithFake(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	done := make(chan error, 1)
	go func() { done <- SleepUntil(context.Background(), c, start.Add(time.Minute)) }()

	c.WaitForWaiters(1)
	if d, ok := c.NextDeadline(); !ok || !d.Equal(start.Add(time.Minute)) {
		t.Fatalf("NextDeadline() = %v, %v", d, ok)
	}
	c.Advance(time.Minute)
	if err := <-done; err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
}

func TestSleepCancelled(t *testing.T) {
	t.Parallel()
	c := Fake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Sleep(ctx, c, time.Hour) }()
	c.WaitForWaiters(1)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep err = %v, want context.Canceled", err)
	}
}

func TestSleepPastDeadlineReturnsImmediately(t *testing.T) {
	t.Parallel()
	start := time.Now()
	c := Fake(start)
	if err := SleepUntil(context.Background(), c, start.Add(-time.Second)); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
}
