package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const DefaultTimezone = "America/Los_Angeles"

var knownDrivers = map[string]bool{
	"": true, "file": true, "sqlite": true, "sqlite3": true, "postgres": true, "postgresql": true, "pgx": true,
}

// Validate reports every problem at once, joined under ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := c.Location(); err != nil {
		add("general.timezone: %w", err)
	}

	dur("source.timeout", c.Source.Timeout)
	if c.Source.RetryMax != nil && *c.Source.RetryMax < 0 {
		add("source.retry_max must be >= 0")
	}
	dur("schedule.skew_retry", c.Schedule.SkewRetry)
	dur("schedule.guard_offset", c.Schedule.GuardOffset)
	dur("schedule.error_backoff", c.Schedule.ErrorBackoff)

	driver := strings.ToLower(strings.TrimSpace(c.State.Driver))
	if !knownDrivers[driver] {
		add("state.driver: unknown driver %q", c.State.Driver)
	}
	switch driver {
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.State.DSN) == "" {
			add("state.dsn is required for driver %q", driver)
		}
	}
	dur("state.busy_timeout", c.State.BusyTimeout)

	if c.Notify.CooldownSplitBudget < 0 {
		add("notify.cooldown_split_budget must be >= 0")
	}
	dur("dispatch.post_timeout", c.Dispatch.PostTimeout)
	dur("dispatch.retry_delay", c.Dispatch.RetryDelay)
	if c.Dispatch.RatePerSec < 0 {
		add("dispatch.rate_per_sec must be >= 0")
	}

	names := map[string]ChannelConfig{}
	for i, ch := range c.Channels {
		p := fmt.Sprintf("channels[%d]", i)
		name := ch.DisplayName()
		if _, dup := names[name]; dup {
			add("%s: duplicate channel name %q", p, name)
		}
		names[name] = ch
		dur(p+".timeout", ch.Timeout)
		switch strings.ToLower(strings.TrimSpace(ch.Type)) {
		case "telegram":
			if strings.TrimSpace(ch.Token) == "" {
				add("%s: telegram token is required", p)
			}
			if ch.ChatID == 0 {
				add("%s: telegram chat_id is required", p)
			}
		case "webhook", "discord":
			if !strings.HasPrefix(ch.URL, "http://") && !strings.HasPrefix(ch.URL, "https://") {
				add("%s: webhook url must be http(s)", p)
			}
		case "console":
		default:
			add("%s: unknown channel type %q", p, ch.Type)
		}
	}

	if c.Logging.Relay.Enabled {
		rc, ok := names[c.Logging.Relay.Channel]
		switch {
		case !ok:
			add("logging.relay.channel: no channel named %q", c.Logging.Relay.Channel)
		case !rc.IsEnabled():
			add("logging.relay.channel: channel %q is disabled", rc.DisplayName())
		case rc.Announces():
			add("logging.relay.channel: channel %q also receives announcements; set announce: false on it", rc.DisplayName())
		}
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path is required when file logging is enabled")
	}

	dur("diag.read_timeout", c.Diag.ReadTimeout)
	dur("diag.write_timeout", c.Diag.WriteTimeout)
	dur("diag.idle_timeout", c.Diag.IdleTimeout)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Location loads general.timezone, defaulting to DefaultTimezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.General.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	return time.LoadLocation(name)
}
