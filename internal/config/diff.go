package config

import (
	"reflect"
	"strings"

	logx "sillyreader/pkg/logx"
)

// Sections applied without a restart. Everything else is read once at
// start-up.
var hotSections = map[string]bool{
	"general":   true,
	"dispatch":  true,
	"channels":  true,
	"logging":   true,
	"diag":      true,
	"heartbeat": true,
}

// SummarizeChange lists the changed top-level sections and loggable fields
// describing the new values. Secrets are reported only as "set" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	section := func(name string, a, b any, f ...logx.Field) {
		if reflect.DeepEqual(a, b) {
			return
		}
		changed = append(changed, name)
		fields = append(fields, f...)
	}

	g := newCfg.General
	section("general", oldCfg.General, g,
		logx.Bool("general.post_updates", g.Posting()),
		logx.Bool("general.print_output", g.PrintOutput),
		logx.Bool("general.generate_images", g.Images()),
		logx.String("general.timezone", g.Timezone),
	)
	section("source", oldCfg.Source, newCfg.Source, logx.String("source.url", newCfg.Source.URL))
	section("schedule", oldCfg.Schedule, newCfg.Schedule)
	section("state", oldCfg.State, newCfg.State, logx.String("state.driver", newCfg.State.Driver))
	section("notify", oldCfg.Notify, newCfg.Notify,
		logx.Int("notify.cooldown_split_budget", newCfg.Notify.CooldownSplitBudget),
		logx.Bool("notify.announce_errors", newCfg.Notify.ErrorsAnnounced()),
	)
	section("dispatch", oldCfg.Dispatch, newCfg.Dispatch,
		logx.String("dispatch.post_timeout", newCfg.Dispatch.PostTimeout),
		logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
		logx.Bool("dispatch.retry_failed", newCfg.Dispatch.RetryFailed),
	)
	section("render", oldCfg.Render, newCfg.Render, logx.String("render.assets_dir", newCfg.Render.AssetsDir))

	names := make([]string, 0, len(newCfg.Channels))
	for _, ch := range newCfg.Channels {
		if ch.IsEnabled() {
			names = append(names, ch.DisplayName())
		}
	}
	section("channels", oldCfg.Channels, newCfg.Channels, logx.Strs("channels", names))

	l := newCfg.Logging
	section("logging", oldCfg.Logging, l,
		logx.String("logging.level", l.Level),
		logx.Bool("logging.file", l.File.Enabled),
		logx.Bool("logging.relay", l.Relay.Enabled),
	)
	d := newCfg.Diag
	section("diag", oldCfg.Diag, d,
		logx.Bool("diag.enabled", d.Enabled),
		logx.String("diag.addr", strings.TrimSpace(d.Addr)),
		logx.Bool("diag.token_set", strings.TrimSpace(d.Token) != ""),
	)
	section("heartbeat", oldCfg.Heartbeat, newCfg.Heartbeat,
		logx.Bool("heartbeat.enabled", newCfg.Heartbeat.Enabled),
		logx.String("heartbeat.spec", newCfg.Heartbeat.Spec),
	)
	return changed, fields
}

// RestartRequired filters changed down to the sections that only take
// effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
