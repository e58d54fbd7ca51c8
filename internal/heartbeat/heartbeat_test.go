package heartbeat

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	logx "sillyreader/pkg/logx"
)

func TestParseSpec(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 7, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		next time.Time
	}{
		{raw: "", next: base.Add(time.Hour)},
		{raw: "30m", next: base.Add(30 * time.Minute)},
		{raw: "every:15m", next: base.Add(15 * time.Minute)},
		{raw: "@every 2h", next: base.Add(2 * time.Hour)},
		{raw: "0 * * * *", next: time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)},
		{raw: "cron:*/10 * * * *", next: time.Date(2026, 5, 1, 10, 10, 0, 0, time.UTC)},
		{raw: "@daily", next: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sched, err := ParseSpec(tt.raw)
			if err != nil {
				t.Fatalf("ParseSpec(%q): %v", tt.raw, err)
			}
			if got := sched.Next(base); !got.Equal(tt.next) {
				t.Fatalf("Next = %v, want %v", got, tt.next)
			}
		})
	}
}

func TestParseSpecInvalid(t *testing.T) {
	for _, raw := range []string{"not-a-schedule", "every:", "500ms", "61 * * * *"} {
		if _, err := ParseSpec(raw); err == nil {
			t.Errorf("ParseSpec(%q) should fail", raw)
		}
	}
}

func TestBeatLogsReport(t *testing.T) {
	var buf bytes.Buffer
	s := New(logx.NewWriter(&buf, "info"), func() []logx.Field {
		return []logx.Field{logx.String("last_state", "active")}
	})
	s.Beat()
	s.Beat()
	if s.Beats() != 2 {
		t.Fatalf("beats = %d", s.Beats())
	}
	out := buf.String()
	if !strings.Contains(out, `"last_state":"active"`) || !strings.Contains(out, `"beat":2`) {
		t.Fatalf("log = %s", out)
	}
}

func TestApplyRejectsBadSpec(t *testing.T) {
	s := New(logx.Nop(), nil)
	defer s.Stop(context.Background())
	if err := s.Apply(Config{Enabled: true, Spec: "@every 1h"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Apply(Config{Enabled: true, Spec: "bogus"}); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Apply(Config{Enabled: false}); err != nil {
		t.Fatalf("disable: %v", err)
	}
}
