// Package watcher runs the poll, dedup and announce cycle.
//
// One cycle: fetch the status, let the schedule guard classify it, and for
// a novel state compose the text, render the image, dispatch to every
// channel and commit the state key. The loop then sleeps until the guard's
// wake time. Nothing in a cycle is fatal; the loop only ends with its
// context.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sillyreader/internal/channel"
	"sillyreader/internal/clock"
	"sillyreader/internal/compose"
	"sillyreader/internal/dispatch"
	"sillyreader/internal/eventbus"
	"sillyreader/internal/observability/metrics"
	"sillyreader/internal/render"
	"sillyreader/internal/schedule"
	"sillyreader/internal/status"
	"sillyreader/internal/tracker"
	logx "sillyreader/pkg/logx"
)

// Flags are the operator toggles, read at the start of every cycle so a
// config reload takes effect on the next one.
type Flags struct {
	Post           bool
	Echo           bool
	Images         bool
	AnnounceErrors bool
}

// DefaultFlags posts with images and announces fetch errors.
func DefaultFlags() Flags {
	return Flags{Post: true, Images: true, AnnounceErrors: true}
}

type Renderer interface {
	Render(st status.Status) ([]byte, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, p compose.Payload) []dispatch.Outcome
}

type Deps struct {
	Source     status.Source
	Guard      *schedule.Guard
	Tracker    *tracker.Tracker
	Composer   *compose.Composer
	Renderer   Renderer
	Dispatcher Dispatcher

	// Echo receives the composed text every processed cycle when
	// Flags.Echo is set. Nil disables echo.
	Echo channel.Channel

	Clock   clock.Clock
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
	Flags   func() Flags
}

// Stats is a snapshot of loop progress.
type Stats struct {
	Cycles      uint64    `json:"cycles"`
	Dispatches  uint64    `json:"dispatches"`
	LastState   string    `json:"last_state"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	NextWakeAt  time.Time `json:"next_wake_at"`
	LastAction  string    `json:"last_action"`
}

// Event payload published on the bus.
type Event struct {
	State  string             `json:"state"`
	Key    string             `json:"key"`
	Action string             `json:"action"`
	Wait   time.Duration      `json:"wait"`
	Failed []string           `json:"failed,omitempty"`
	Result []dispatch.Outcome `json:"-"`
}

type Loop struct {
	d   Deps
	log logx.Logger

	mu    sync.Mutex
	stats Stats
}

func New(d Deps) *Loop {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Flags == nil {
		d.Flags = DefaultFlags
	}
	if d.Guard == nil {
		d.Guard = schedule.New(schedule.Config{})
	}
	return &Loop{d: d, log: d.Log.With(logx.String("comp", "watcher"))}
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Run cycles until ctx is done and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("watch loop started", logx.String("last_state", l.d.Tracker.Last()))
	for {
		dec, err := l.RunCycle(ctx)
		if err != nil && ctx.Err() == nil {
			l.log.Error("cycle failed", logx.Err(err))
		}
		if err := clock.SleepUntil(ctx, l.d.Clock, dec.Until); err != nil {
			l.log.Info("watch loop stopped")
			return err
		}
	}
}

// RunCycle runs one cycle and returns when the next one is due. The error
// is informational: the decision is always usable.
func (l *Loop) RunCycle(ctx context.Context) (schedule.Decision, error) {
	flags := l.d.Flags()
	st := l.d.Source.Fetch(ctx)
	now := l.d.Clock.Now()
	l.d.Metrics.ObserveFetch(st.State.String(), now)

	dec := l.d.Guard.Decide(st, now)
	l.note(st, dec, now)
	l.d.Metrics.SetNextPoll(dec.Wait)

	ev := Event{State: st.State.String(), Key: st.Key(), Action: dec.Action.String(), Wait: dec.Wait}
	switch dec.Action {
	case schedule.ActionSkewRetry:
		l.d.Metrics.ObserveSkew()
		l.log.Debug("source not rotated yet, retrying",
			logx.Time("next_update", st.NextUpdateAt), logx.Duration("wait", dec.Wait))
		l.publish(eventbus.TypeSkew, ev)
		return dec, nil
	case schedule.ActionBackoff:
		l.log.Warn("status fetch failed",
			logx.Int("code", st.ErrorCode), logx.Err(st.Err), logx.Duration("backoff", dec.Wait))
		l.publish(eventbus.TypeFetchError, ev)
		if !flags.AnnounceErrors {
			return dec, nil
		}
	default:
		l.log.Debug("status fetched",
			logx.String("state", st.State.String()), logx.Int("rewards", st.NumRewards()),
			logx.Time("next_update", st.NextUpdateAt))
		l.publish(eventbus.TypeFetched, ev)
	}

	payload := l.d.Composer.Compose(st)
	if flags.Echo && l.d.Echo != nil {
		l.echo(ctx, payload)
	}

	if !l.d.Tracker.IsNovel(st) {
		l.log.Debug("state unchanged", logx.String("key", st.Key()))
		l.publish(eventbus.TypeUnchanged, ev)
		return dec, nil
	}
	if !flags.Post {
		l.log.Info("posting disabled, transition not announced",
			logx.String("from", l.d.Tracker.Last()), logx.String("to", st.Key()))
		return dec, nil
	}

	if flags.Images && l.d.Renderer != nil {
		payload.Image = l.render(st)
	}

	l.log.Info("announcing transition",
		logx.String("from", l.d.Tracker.Last()), logx.String("to", st.Key()), logx.Bool("image", payload.Image != nil))
	var outcomes []dispatch.Outcome
	if l.d.Dispatcher != nil {
		outcomes = l.d.Dispatcher.Dispatch(ctx, payload)
	}
	for _, o := range outcomes {
		l.d.Metrics.ObserveDispatch(o.Channel, o.OK(), o.Took)
		if !o.OK() {
			ev.Failed = append(ev.Failed, o.Channel)
		}
	}
	ev.Result = outcomes
	l.d.Metrics.ObserveTransition(st.State.String())

	l.mu.Lock()
	l.stats.Dispatches++
	l.mu.Unlock()

	err := l.d.Tracker.Commit(ctx, st)
	if err != nil {
		l.d.Metrics.ObserveCommitError()
	}
	l.publish(eventbus.TypeDispatched, ev)
	return dec, err
}

func (l *Loop) note(st status.Status, dec schedule.Decision, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Cycles++
	l.stats.LastCycleAt = now
	l.stats.NextWakeAt = dec.Until
	l.stats.LastAction = dec.Action.String()
	if st.OK() {
		l.stats.LastState = st.State.String()
	}
}

func (l *Loop) render(st status.Status) []byte {
	start := l.d.Clock.Now()
	img, err := l.d.Renderer.Render(st)
	switch {
	case errors.Is(err, render.ErrNoCanvas):
		return nil
	case err != nil:
		l.log.Warn("render failed, posting without image", logx.String("state", st.State.String()), logx.Err(err))
		return nil
	}
	l.d.Metrics.ObserveRender(l.d.Clock.Now().Sub(start))
	return img
}

func (l *Loop) echo(ctx context.Context, p compose.Payload) {
	id, err := l.d.Echo.Post(ctx, p.Primary)
	if err == nil && p.Overflow != "" {
		_, err = l.d.Echo.Reply(ctx, id, p.Overflow)
	}
	if err != nil {
		l.log.Warn("echo failed", logx.Err(err))
	}
}

func (l *Loop) publish(typ string, ev Event) {
	if l.d.Bus == nil {
		return
	}
	l.d.Bus.Publish(eventbus.Event{Type: typ, Time: l.d.Clock.Now(), Data: ev})
}

// Describe is a one-line summary for logs and heartbeats.
func (s Stats) Describe() string {
	return fmt.Sprintf("cycles=%d dispatches=%d state=%s action=%s next=%s",
		s.Cycles, s.Dispatches, s.LastState, s.LastAction, s.NextWakeAt.Format(time.RFC3339))
}
