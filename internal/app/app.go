// Package app wires configuration, storage, channels and the watch loop
// into one supervised process.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"sillyreader/internal/channel"
	"sillyreader/internal/compose"
	"sillyreader/internal/config"
	"sillyreader/internal/dispatch"
	"sillyreader/internal/eventbus"
	"sillyreader/internal/heartbeat"
	"sillyreader/internal/observability/diag"
	"sillyreader/internal/observability/metrics"
	"sillyreader/internal/render"
	rtsup "sillyreader/internal/runtime/supervisor"
	"sillyreader/internal/schedule"
	"sillyreader/internal/status"
	"sillyreader/internal/storage"
	"sillyreader/internal/tracker"
	"sillyreader/internal/watcher"
	logx "sillyreader/pkg/logx"
)

type Options struct {
	ConfigPath string
	// Stdout receives echo output and console channels. Defaults to os.Stdout.
	Stdout io.Writer
	// Source overrides the HTTP status source.
	Source status.Source
}

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	loc  *time.Location

	bus     eventbus.Bus
	metrics *metrics.Metrics
	store   storage.StateStore
	tracker *tracker.Tracker
	disp    *dispatch.Dispatcher
	rend    *render.Compositor
	loop    *watcher.Loop
	diag    *diag.Server
	beat    *heartbeat.Service

	stdout io.Writer
	sup    *rtsup.Supervisor

	mu       sync.RWMutex
	cfg      *config.Config
	channels channelSet
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath, logx.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	logx.SetLocation(loc)

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	a := &App{cfgm: cfgm, loc: loc, cfg: cfg, stdout: stdout}

	// Relay stays off until the sender is installed.
	logCfg := mapLogConfig(cfg)
	relay := logCfg.Relay.Enabled
	logCfg.Relay.Enabled = false
	logs, log := logx.New(logCfg)
	a.logs = logs
	a.log = log.With(logx.String("comp", "app"))
	logs.SetSender(a.relay)
	if relay {
		logCfg.Relay.Enabled = true
		logs.Apply(logCfg)
	}
	cfgm.SetLogger(log)

	a.bus = eventbus.New()
	a.metrics = metrics.New()

	sc := mapStorageConfig(cfg)
	a.store, err = storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	a.tracker = tracker.New(a.store, log)

	a.channels, err = buildChannels(cfg, stdout, log)
	if err != nil {
		_ = a.store.Close()
		return nil, err
	}
	if len(a.channels.Announce) == 0 {
		a.log.Warn("no channels configured; transitions will only be logged")
	}

	src := opts.Source
	if src == nil {
		src = status.NewHTTPSource(mapSourceConfig(cfg), log)
	}
	a.disp = dispatch.New(mapDispatchConfig(cfg), a.channels.Announce, log, a.bus)
	a.rend = render.New(render.Config{AssetsDir: cfg.Render.AssetsDir, Location: loc}, log)
	a.loop = watcher.New(watcher.Deps{
		Source:     src,
		Guard:      schedule.New(mapGuardConfig(cfg)),
		Tracker:    a.tracker,
		Composer:   compose.New(mapComposeConfig(cfg, loc)),
		Renderer:   a.rend,
		Dispatcher: a.disp,
		Echo:       channel.NewConsole("echo", stdout),
		Log:        log,
		Bus:        a.bus,
		Metrics:    a.metrics,
		Flags:      a.flags,
	})
	a.diag = diag.New(log, a.metrics.Handler(), a.health)
	a.beat = heartbeat.New(log, a.heartbeatFields)

	a.log.Info("app initialized",
		logx.String("config", opts.ConfigPath),
		logx.String("state_driver", sc.Driver),
		logx.Strs("channels", a.disp.Channels()),
		logx.String("timezone", loc.String()),
	)
	return a, nil
}

func (a *App) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *App) flags() watcher.Flags { return mapFlags(a.config()) }

// relay posts a log line to the channel named by logging.relay.channel.
// Validation keeps that channel out of the announcement set.
func (a *App) relay(ctx context.Context, text string) error {
	a.mu.RLock()
	ch := findChannel(a.channels.All, a.cfg.Logging.Relay.Channel)
	a.mu.RUnlock()
	if ch == nil {
		return nil
	}
	_, err := ch.Post(ctx, text)
	return err
}

func (a *App) health() map[string]any {
	out := map[string]any{
		"last_state": a.tracker.Last(),
		"loop":       a.loop.Stats(),
	}
	if a.sup != nil {
		out["tasks"] = a.sup.Snapshot()
	}
	return out
}

func (a *App) heartbeatFields() []logx.Field {
	s := a.loop.Stats()
	return []logx.Field{
		logx.Uint64("cycles", s.Cycles),
		logx.Uint64("dispatches", s.Dispatches),
		logx.String("last_state", s.LastState),
		logx.String("persisted", a.tracker.Last()),
		logx.Time("next_wake", s.NextWakeAt),
	}
}

// Done is closed when the app stops or a supervised task fails fatally.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce loads the persisted state and runs a single cycle.
func (a *App) RunOnce(ctx context.Context) error {
	if err := a.tracker.Load(ctx); err != nil {
		return err
	}
	dec, err := a.loop.RunCycle(ctx)
	a.log.Info("cycle complete",
		logx.String("action", dec.Action.String()),
		logx.Time("next", dec.Until),
		logx.String("persisted", a.tracker.Last()),
	)
	return err
}

// Start loads state and launches the watch loop, config watcher and
// optional services.
func (a *App) Start(ctx context.Context) error {
	if err := a.tracker.Load(ctx); err != nil {
		return err
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.config()

	a.cfgm.SetValidator(func(c context.Context, next *config.Config) error {
		if next.Heartbeat.Enabled {
			if _, err := heartbeat.ParseSpec(next.Heartbeat.Spec); err != nil {
				return err
			}
		}
		return nil
	})

	a.diag.Apply(a.sup.Context(), mapDiagConfig(cfg))
	if err := a.beat.Apply(mapHeartbeatConfig(cfg, a.loc)); err != nil {
		a.log.Warn("heartbeat disabled", logx.Err(err))
	}

	a.sup.GoRestart("watcher.loop", a.loop.Run,
		rtsup.WithRestartBackoff(time.Second, time.Minute),
		rtsup.WithPublishFirstError(true),
	)
	a.sup.Go("config.watch", a.cfgm.Watch)

	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(c, next)
			}
		}
	})

	a.sup.Go("eventbus.log", func(c context.Context) error {
		eventbus.Consume(c, a.bus, 64, func(e eventbus.Event) {
			a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		})
		return nil
	})

	a.log.Info("app started", logx.String("last_state", a.tracker.Last()))
	return nil
}

// applyConfig hot-applies the sections that support it and warns about
// the rest.
func (a *App) applyConfig(ctx context.Context, next *config.Config) {
	prev := a.config()
	changed, fields := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reload had no effective changes")
		return
	}

	var (
		chs  channelSet
		swap bool
	)
	if contains(changed, "channels") {
		built, err := buildChannels(next, a.stdout, a.log)
		if err != nil {
			a.log.Warn("channel rebuild failed; keeping previous channels", logx.Err(err))
		} else {
			chs, swap = built, true
		}
	}

	a.mu.Lock()
	old := a.channels
	a.cfg = next
	if swap {
		a.channels = chs
	}
	a.mu.Unlock()

	if swap {
		a.disp.SetChannels(chs.Announce)
		closeChannels(old.All)
	}
	a.logs.Apply(mapLogConfig(next))
	a.disp.Apply(mapDispatchConfig(next))
	a.diag.Apply(ctx, mapDiagConfig(next))
	if err := a.beat.Apply(mapHeartbeatConfig(next, a.loc)); err != nil {
		a.log.Warn("heartbeat config rejected", logx.Err(err))
	}

	fields = append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, fields...)
	a.log.Info("config applied", fields...)
	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("some config changes take effect after restart", logx.Strs("sections", restart))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApply, Data: changed})
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Stop shuts services down in order, each step bounded so one hung
// dependency cannot block the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("step", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("step", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("heartbeat", time.Second, func(c context.Context) error { a.beat.Stop(c); return nil })
	step("diag", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 5*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	step("channels", time.Second, func(c context.Context) error {
		a.mu.Lock()
		chs := a.channels
		a.channels = channelSet{}
		a.mu.Unlock()
		closeChannels(chs.All)
		return nil
	})
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })
	a.rend.Close()

	a.log.Info("stopped")
	return a.logs.Close()
}
