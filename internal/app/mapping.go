package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"sillyreader/internal/channel"
	"sillyreader/internal/compose"
	"sillyreader/internal/config"
	"sillyreader/internal/dispatch"
	"sillyreader/internal/heartbeat"
	"sillyreader/internal/observability/diag"
	"sillyreader/internal/schedule"
	"sillyreader/internal/status"
	"sillyreader/internal/storage"
	"sillyreader/internal/watcher"
	logx "sillyreader/pkg/logx"
)

const (
	defaultStatePath  = "lastState"
	defaultSQLitePath = "sillyreader.db"
)

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.State
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = defaultStatePath
		if driver == "sqlite" || driver == "sqlite3" {
			path = defaultSQLitePath
		}
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		DSN:         strings.TrimSpace(sc.DSN),
		Name:        strings.TrimSpace(sc.Name),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

func mapSourceConfig(cfg *config.Config) status.HTTPConfig {
	retry := 2
	if cfg.Source.RetryMax != nil {
		retry = *cfg.Source.RetryMax
	}
	return status.HTTPConfig{
		URL:       cfg.Source.URL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   config.DurationOr(cfg.Source.Timeout, 15*time.Second),
		RetryMax:  retry,
	}
}

func mapGuardConfig(cfg *config.Config) schedule.Config {
	return schedule.Config{
		SkewRetry:    config.DurationOr(cfg.Schedule.SkewRetry, schedule.DefaultSkewRetry),
		GuardOffset:  config.DurationOr(cfg.Schedule.GuardOffset, schedule.DefaultGuardOffset),
		ErrorBackoff: config.DurationOr(cfg.Schedule.ErrorBackoff, schedule.DefaultErrorBackoff),
	}
}

func mapComposeConfig(cfg *config.Config, loc *time.Location) compose.Config {
	return compose.Config{
		Location:     loc,
		SplitBudget:  cfg.Notify.CooldownSplitBudget,
		ErrorBackoff: config.DurationOr(cfg.Schedule.ErrorBackoff, schedule.DefaultErrorBackoff),
	}
}

func mapDispatchConfig(cfg *config.Config) dispatch.Config {
	d := cfg.Dispatch
	return dispatch.Config{
		PostTimeout: config.DurationOr(d.PostTimeout, 30*time.Second),
		RatePerSec:  d.RatePerSec,
		RetryFailed: d.RetryFailed,
		RetryDelay:  config.DurationOr(d.RetryDelay, 5*time.Second),
	}
}

func mapFlags(cfg *config.Config) watcher.Flags {
	return watcher.Flags{
		Post:           cfg.General.Posting(),
		Echo:           cfg.General.PrintOutput,
		Images:         cfg.General.Images(),
		AnnounceErrors: cfg.Notify.ErrorsAnnounced(),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
		},
		Relay: logx.RelayConfig{
			Enabled:    l.Relay.Enabled,
			MinLevel:   l.Relay.MinLevel,
			RatePerSec: l.Relay.RatePerSec,
		},
	}
}

func mapDiagConfig(cfg *config.Config) diag.Config {
	d := cfg.Diag
	return diag.Config{
		Enabled:              d.Enabled,
		Addr:                 d.Addr,
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		ReadTimeout:          config.DurationOr(d.ReadTimeout, 10*time.Second),
		WriteTimeout:         config.DurationOr(d.WriteTimeout, 60*time.Second),
		IdleTimeout:          config.DurationOr(d.IdleTimeout, 60*time.Second),
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}
}

func mapHeartbeatConfig(cfg *config.Config, loc *time.Location) heartbeat.Config {
	return heartbeat.Config{Enabled: cfg.Heartbeat.Enabled, Spec: cfg.Heartbeat.Spec, Location: loc}
}

// channelSet holds every enabled channel and the subset that receives
// announcements. Channels outside Announce are reachable only by name,
// as the log relay destination.
type channelSet struct {
	All      []channel.Channel
	Announce []channel.Channel
}

// buildChannels constructs every enabled channel. Console channels write
// to stdout.
func buildChannels(cfg *config.Config, stdout io.Writer, log logx.Logger) (channelSet, error) {
	var set channelSet
	for i, cc := range cfg.Channels {
		if !cc.IsEnabled() {
			continue
		}
		timeout := config.DurationOr(cc.Timeout, 30*time.Second)
		var (
			ch  channel.Channel
			err error
		)
		switch strings.ToLower(strings.TrimSpace(cc.Type)) {
		case "telegram":
			ch, err = channel.NewTelegram(channel.TelegramConfig{
				Name:           cc.DisplayName(),
				Token:          cc.Token,
				ChatID:         cc.ChatID,
				ThreadID:       cc.ThreadID,
				ParseMode:      cc.ParseMode,
				DisablePreview: cc.DisablePreview,
				APIURL:         cc.APIURL,
				Timeout:        timeout,
			}, log)
		case "webhook", "discord":
			ch, err = channel.NewWebhook(channel.WebhookConfig{
				Name:     cc.DisplayName(),
				URL:      cc.URL,
				Username: cc.Username,
				ThreadID: cc.Thread,
				Timeout:  timeout,
				RetryMax: cc.RetryMax,
			}, log)
		case "console":
			ch = channel.NewConsole(cc.DisplayName(), stdout)
		default:
			err = fmt.Errorf("unknown channel type %q", cc.Type)
		}
		if err != nil {
			closeChannels(set.All)
			return channelSet{}, fmt.Errorf("channels[%d] (%s): %w", i, cc.DisplayName(), err)
		}
		set.All = append(set.All, ch)
		if cc.Announces() {
			set.Announce = append(set.Announce, ch)
		}
	}
	return set, nil
}

func closeChannels(chs []channel.Channel) {
	for _, ch := range chs {
		if c, ok := ch.(channel.Closer); ok {
			_ = c.Close()
		}
	}
}

func findChannel(chs []channel.Channel, name string) channel.Channel {
	for _, ch := range chs {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}
