package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/coreos/go-systemd/v22/daemon"
	flag "github.com/spf13/pflag"

	"sillyreader/internal/app"
	"sillyreader/internal/render"
	"sillyreader/internal/status"
	logx "sillyreader/pkg/logx"
)

func main() {
	var (
		cfgPath    string
		once       bool
		renderPath string
		sample     string
		assetsDir  string
	)
	flag.StringVarP(&cfgPath, "config", "c", "config.yaml", "path to config file (json, yaml or toml)")
	flag.BoolVar(&once, "once", false, "run a single cycle and exit")
	flag.StringVar(&renderPath, "render", "", "render a sample image to `PATH` and exit")
	flag.StringVar(&sample, "sample", "active", "sample state for --render: active, reward or cooling")
	flag.StringVar(&assetsDir, "assets", "assets", "assets directory for --render")
	flag.Parse()

	if renderPath != "" {
		if err := renderSample(renderPath, sample, assetsDir); err != nil {
			fmt.Fprintln(os.Stderr, "fatal render:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, app.Options{ConfigPath: cfgPath})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if once {
		err := a.RunOnce(ctx)
		_ = a.Stop(context.Background(), app.StopOnce)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cycle:", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdog(ctx)

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}

// watchdog pings systemd at half the configured WatchdogSec. It is a no-op
// when the unit has no watchdog.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

func renderSample(path, sample, assetsDir string) error {
	now := time.Now()
	var st status.Status
	switch strings.ToLower(sample) {
	case "active":
		st = status.New("Active", []string{"Double Jellybeans", "Doodle Trick Boost", "Double Racing Tickets"}, "", now, now.Add(90*time.Minute))
	case "reward":
		st = status.New("Reward", nil, "Double Jellybeans", now, now.Add(time.Hour))
	case "cooling":
		st = status.New("Inactive", []string{"Overjoyed Laff Meters", "Decreased Fish Rarity", "Speedy Garden Growth"}, "", now, now.Add(3*time.Hour))
	default:
		return errors.New("unknown sample state " + sample)
	}

	log := logx.NewConsole("info")
	c := render.New(render.Config{AssetsDir: assetsDir, Location: time.Local}, log)
	defer c.Close()
	b, err := c.Render(st)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	log.Info("sample rendered", logx.String("path", path), logx.String("state", st.State.String()), logx.Int("bytes", len(b)))
	return nil
}
