package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNewWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("component", "watcher"))

	log.Debug("hidden")
	log.Info("fetched", Int("rewards", 3), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["component"] != "watcher" || m["message"] != "fetched" || m["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["rewards"].(float64) != 3 {
		t.Fatalf("rewards = %v", m["rewards"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestFormatRelayJSON(t *testing.T) {
	got := formatRelayJSON([]byte(`{"level":"error","message":"dispatch failed","channel":"telegram","time":"x"}`))
	want := "[ERROR] dispatch failed\n- channel=telegram"
	if got != want {
		t.Fatalf("formatRelayJSON = %q, want %q", got, want)
	}
	if got := formatRelayJSON([]byte("not json")); got != "not json" {
		t.Fatalf("non-json passthrough = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		" error ": LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRelayForwardsWarnings(t *testing.T) {
	got := make(chan string, 4)
	svc, log := New(Config{Level: "info", Console: true})
	defer svc.Close()
	svc.SetSender(func(ctx context.Context, text string) error {
		got <- text
		return nil
	})
	svc.Apply(Config{Level: "info", Console: true, Relay: RelayConfig{Enabled: true, RatePerSec: 10}})

	log.Info("routine")
	log.Warn("fetch failed", String("url", "http://x"))

	select {
	case msg := <-got:
		if !strings.HasPrefix(msg, "[WARN] fetch failed") || !strings.Contains(msg, "url=http://x") {
			t.Fatalf("relayed %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not relayed")
	}
	select {
	case msg := <-got:
		t.Fatalf("unexpected relay %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path, MaxSizeMB: 1}})
	log.Debug("to file", Int("n", 1))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"message":"to file"`) {
		t.Fatalf("file contents: %s", b)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijkl", 10, "abcdefg..."},
		{"ééééééé", 10, "ééé..."},
		{"ééé", 5, "éé"},
		{"🎉🎉🎉🎉", 12, "🎉🎉..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want || !utf8.ValidString(got) || len(got) > tt.max {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
