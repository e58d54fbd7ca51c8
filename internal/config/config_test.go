package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "sillyreader/pkg/logx"
)

const jsonCfg = `{
  "general": {"post_updates": false, "print_output": true, "timezone": "UTC"},
  "state": {"driver": "file", "path": "lastState"},
  "notify": {"cooldown_split_budget": 280},
  "channels": [
    {"type": "telegram", "name": "tg", "token": "123:abc", "chat_id": -100123, "thread_id": 7},
    {"type": "webhook", "name": "discord", "url": "https://example.com/hook"}
  ],
  "heartbeat": {"enabled": true, "spec": "@every 30m"}
}`

const yamlCfg = `
general:
  post_updates: false
  print_output: true
  timezone: UTC
state:
  driver: file
  path: lastState
notify:
  cooldown_split_budget: 280
channels:
  - type: telegram
    name: tg
    token: "123:abc"
    chat_id: -100123
    thread_id: 7
  - type: webhook
    name: discord
    url: https://example.com/hook
heartbeat:
  enabled: true
  spec: "@every 30m"
`

const tomlCfg = `
[general]
post_updates = false
print_output = true
timezone = "UTC"

[state]
driver = "file"
path = "lastState"

[notify]
cooldown_split_budget = 280

[[channels]]
type = "telegram"
name = "tg"
token = "123:abc"
chat_id = -100123
thread_id = 7

[[channels]]
type = "webhook"
name = "discord"
url = "https://example.com/hook"

[heartbeat]
enabled = true
spec = "@every 30m"
`

func TestDecodeFormatsAgree(t *testing.T) {
	tests := []struct {
		name, data string
	}{
		{"config.json", jsonCfg},
		{"config.yaml", yamlCfg},
		{"config.toml", tomlCfg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode(tt.name, []byte(tt.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if cfg.General.Posting() || !cfg.General.PrintOutput || !cfg.General.Images() {
				t.Errorf("general = %+v", cfg.General)
			}
			if cfg.Notify.CooldownSplitBudget != 280 || !cfg.Notify.ErrorsAnnounced() {
				t.Errorf("notify = %+v", cfg.Notify)
			}
			if len(cfg.Channels) != 2 {
				t.Fatalf("channels = %d", len(cfg.Channels))
			}
			tg := cfg.Channels[0]
			if tg.ChatID != -100123 || tg.ThreadID != 7 || tg.Token != "123:abc" {
				t.Errorf("telegram = %+v", tg)
			}
			if cfg.Channels[1].URL != "https://example.com/hook" {
				t.Errorf("webhook = %+v", cfg.Channels[1])
			}
			if !cfg.Heartbeat.Enabled || cfg.Heartbeat.Spec != "@every 30m" {
				t.Errorf("heartbeat = %+v", cfg.Heartbeat)
			}
		})
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"general": {"post_update": true}}`))
	if err == nil || !strings.Contains(err.Error(), "post_update") {
		t.Fatalf("err = %v", err)
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("trailing data err = %v", err)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		General:  GeneralConfig{Timezone: "Mars/Olympus"},
		Schedule: ScheduleConfig{SkewRetry: "soon"},
		State:    StateConfig{Driver: "postgres"},
		Channels: []ChannelConfig{
			{Type: "telegram"},
			{Type: "webhook", Name: "telegram", URL: "ftp://x"},
			{Type: "pigeon"},
		},
		Logging: LoggingConfig{Relay: LogRelay{Enabled: true, Channel: "ops"}},
	}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
	for _, want := range []string{
		"general.timezone",
		"schedule.skew_retry",
		"state.dsn is required",
		"telegram token is required",
		"chat_id is required",
		`duplicate channel name "telegram"`,
		"webhook url must be http(s)",
		`unknown channel type "pigeon"`,
		`no channel named "ops"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in:\n%v", want, err)
		}
	}
}

func TestEmptyConfigIsValid(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	if loc.String() != DefaultTimezone {
		t.Fatalf("location = %s", loc)
	}
}

func TestDurationOr(t *testing.T) {
	if got := DurationOr("", time.Minute); got != time.Minute {
		t.Errorf("empty = %v", got)
	}
	if got := DurationOr("45s", time.Minute); got != 45*time.Second {
		t.Errorf("45s = %v", got)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Error("negative duration accepted")
	}
}

func TestSummarizeChange(t *testing.T) {
	a := &Config{Diag: DiagConfig{Token: "old"}}
	b := &Config{
		General: GeneralConfig{PrintOutput: true},
		Source:  SourceConfig{URL: "https://example.com"},
		Diag:    DiagConfig{Token: "new"},
	}
	changed, fields := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "general,source,diag" {
		t.Fatalf("changed = %v", changed)
	}
	if len(fields) == 0 {
		t.Fatal("no fields")
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "source" {
		t.Fatalf("restart required = %v", got)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"general": {"print_output": false}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		// Rewrite until the watcher has caught one.
		if err := os.WriteFile(path, []byte(`{"general": {"print_output": true}}`), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case cfg := <-updates:
			if !cfg.General.PrintOutput {
				t.Fatalf("reloaded config = %+v", cfg.General)
			}
			if !m.Get().General.PrintOutput {
				t.Fatal("Get not updated")
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("general:\n  print_output: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.WriteFile(path, []byte("general:\n  print_output: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if !m.Get().General.PrintOutput {
		t.Fatal("bad reload replaced config")
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error { return errors.New("nope") })
	if err := os.WriteFile(path, []byte("general:\n  print_output: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if !m.Get().General.PrintOutput {
		t.Fatal("rejected reload replaced config")
	}
}

func TestRelayChannelMustNotAnnounce(t *testing.T) {
	off := false
	tests := []struct {
		name    string
		channel ChannelConfig
		wantErr string
	}{
		{"operator only", ChannelConfig{Type: "console", Name: "ops", Announce: &off}, ""},
		{"announcing", ChannelConfig{Type: "console", Name: "ops"}, "also receives announcements"},
		{"disabled", ChannelConfig{Type: "console", Name: "ops", Announce: &off, Enabled: &off}, "is disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				General:  GeneralConfig{Timezone: "UTC"},
				Channels: []ChannelConfig{{Type: "console", Name: "public"}, tt.channel},
				Logging:  LoggingConfig{Relay: LogRelay{Enabled: true, Channel: "ops"}},
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestExampleConfig(t *testing.T) {
	if _, err := time.LoadLocation(DefaultTimezone); err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	data, err := os.ReadFile(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode("config.example.yaml", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Notify.CooldownSplitBudget != 0 {
		t.Errorf("cooldown_split_budget = %d, want 0 so upcoming teams always go to the reply", cfg.Notify.CooldownSplitBudget)
	}
	for _, ch := range cfg.Channels {
		if ch.DisplayName() == cfg.Logging.Relay.Channel && ch.Announces() {
			t.Errorf("relay channel %q receives announcements", ch.DisplayName())
		}
	}
}
