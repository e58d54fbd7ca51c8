// Package heartbeat logs the watch loop's progress on a cron schedule so a
// quiet service can be told apart from a stuck one.
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "sillyreader/pkg/logx"
)

const DefaultSpec = "@every 1h"

type Config struct {
	Enabled bool
	// Spec is a cron expression, a descriptor such as "@hourly" or
	// "@every 30m", or a bare duration.
	Spec     string
	Location *time.Location
}

// Reporter returns the fields to log with each beat.
type Reporter func() []logx.Field

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSpec accepts the same forms as Config.Spec, with optional "cron:" or
// "every:" prefixes.
func ParseSpec(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultSpec
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		s = strings.TrimSpace(s[len("cron:"):])
	case strings.HasPrefix(low, "every:"):
		return parseEvery(strings.TrimSpace(s[len("every:"):]))
	case !strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, "@"):
		return parseEvery(s)
	}
	sched, err := parser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid heartbeat schedule %q: %w", raw, err)
	}
	return sched, nil
}

func parseEvery(v string) (cron.Schedule, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid heartbeat interval %q (use cron like '0 * * * *' or duration like '30m')", v)
	}
	if d < time.Second {
		return nil, fmt.Errorf("heartbeat interval must be >= 1s, got %s", d)
	}
	return cron.Every(d), nil
}

type Service struct {
	log    logx.Logger
	report Reporter

	mu    sync.Mutex
	cfg   Config
	c     *cron.Cron
	beats uint64
}

func New(log logx.Logger, report Reporter) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log.With(logx.String("comp", "heartbeat")), report: report}
}

// Apply replaces the schedule. An invalid spec leaves the previous
// schedule running and returns the error.
func (s *Service) Apply(cfg Config) error {
	var sched cron.Schedule
	if cfg.Enabled {
		var err error
		if sched, err = ParseSpec(cfg.Spec); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.cfg = cfg
	if !cfg.Enabled {
		return nil
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	s.c.Schedule(sched, cron.FuncJob(s.Beat))
	s.c.Start()
	s.log.Info("heartbeat scheduled", logx.String("spec", strings.TrimSpace(cfg.Spec)))
	return nil
}

// Beat logs one heartbeat immediately.
func (s *Service) Beat() {
	s.mu.Lock()
	s.beats++
	n := s.beats
	s.mu.Unlock()

	fields := []logx.Field{logx.Uint64("beat", n)}
	if s.report != nil {
		fields = append(fields, s.report()...)
	}
	s.log.Info("heartbeat", fields...)
}

func (s *Service) Beats() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats
}

// Stop halts the schedule and waits for a running beat, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
