package schedule

import (
	"errors"
	"testing"
	"time"

	"sillyreader/internal/status"
)

func TestDecide(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := New(Config{})

	tests := []struct {
		name   string
		st     status.Status
		action Action
		until  time.Time
	}{
		{
			name:   "next update in future",
			st:     status.New("Active", nil, "", now.Add(-time.Minute), now.Add(time.Hour)),
			action: ActionProcess,
			until:  now.Add(time.Hour + DefaultGuardOffset),
		},
		{
			name:   "server not rotated yet",
			st:     status.New("Active", nil, "", now.Add(-time.Hour), now.Add(-time.Second)),
			action: ActionSkewRetry,
			until:  now.Add(DefaultSkewRetry),
		},
		{
			name:   "boundary exactly now",
			st:     status.New("Inactive", nil, "", now.Add(-time.Hour), now),
			action: ActionSkewRetry,
			until:  now.Add(DefaultSkewRetry),
		},
		{
			name:   "fetch error ignores next update",
			st:     status.Failed(502, errors.New("bad gateway"), now),
			action: ActionBackoff,
			until:  now.Add(DefaultErrorBackoff),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := g.Decide(tt.st, now)
			if d.Action != tt.action {
				t.Fatalf("Action = %v, want %v", d.Action, tt.action)
			}
			if !d.Until.Equal(tt.until) {
				t.Fatalf("Until = %v, want %v", d.Until, tt.until)
			}
			if d.Wait != tt.until.Sub(now) {
				t.Fatalf("Wait = %v, want %v", d.Wait, tt.until.Sub(now))
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := New(Config{GuardOffset: -1}).Config()
	if cfg.GuardOffset != 0 {
		t.Fatalf("GuardOffset = %v, want 0 for negative input", cfg.GuardOffset)
	}
	if cfg.SkewRetry != DefaultSkewRetry || cfg.ErrorBackoff != DefaultErrorBackoff {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
