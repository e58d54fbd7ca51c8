package schedule

import (
	"time"

	"sillyreader/internal/status"
)

// Defaults mirror the cadence of the status endpoint: it rotates on a
// declared boundary and is polled shortly after it.
const (
	DefaultSkewRetry    = 30 * time.Second
	DefaultGuardOffset  = 30 * time.Second
	DefaultErrorBackoff = 5 * time.Minute
)

// Action is what the loop should do with a fetched status.
type Action int

const (
	// ActionProcess runs the notification logic, then waits for the
	// next declared boundary.
	ActionProcess Action = iota
	// ActionSkewRetry means the server has not rotated yet. Nothing is
	// processed; the loop re-fetches after a short wait.
	ActionSkewRetry
	// ActionBackoff runs the notification logic for a fetch error, then
	// waits a fixed interval.
	ActionBackoff
)

func (a Action) String() string {
	switch a {
	case ActionProcess:
		return "process"
	case ActionSkewRetry:
		return "skew_retry"
	case ActionBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Config holds the three waits the guard chooses between.
type Config struct {
	SkewRetry    time.Duration
	GuardOffset  time.Duration
	ErrorBackoff time.Duration
}

// Decision is the guard's verdict for one fetch. Until is the absolute
// wake time; Wait is Until relative to the decision instant.
type Decision struct {
	Action Action
	Until  time.Time
	Wait   time.Duration
}

// Guard decides when to poll next. It is stateless and never ends the loop.
type Guard struct {
	cfg Config
}

func New(cfg Config) *Guard {
	if cfg.SkewRetry <= 0 {
		cfg.SkewRetry = DefaultSkewRetry
	}
	if cfg.GuardOffset < 0 {
		cfg.GuardOffset = 0
	} else if cfg.GuardOffset == 0 {
		cfg.GuardOffset = DefaultGuardOffset
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	return &Guard{cfg: cfg}
}

func (g *Guard) Config() Config { return g.cfg }

// Decide classifies a fetch result observed at now.
//
// A successful fetch whose declared next update is not in the future means
// the server clock is ahead of the source's rotation: retry shortly without
// treating it as a new cycle.
func (g *Guard) Decide(st status.Status, now time.Time) Decision {
	switch {
	case !st.OK():
		until := now.Add(g.cfg.ErrorBackoff)
		return Decision{Action: ActionBackoff, Until: until, Wait: g.cfg.ErrorBackoff}
	case !now.Before(st.NextUpdateAt):
		until := now.Add(g.cfg.SkewRetry)
		return Decision{Action: ActionSkewRetry, Until: until, Wait: g.cfg.SkewRetry}
	default:
		until := st.NextUpdateAt.Add(g.cfg.GuardOffset)
		return Decision{Action: ActionProcess, Until: until, Wait: until.Sub(now)}
	}
}
