// Package dispatch fans a composed announcement out to every channel.
//
// Channels are delivered in parallel and independently: a failing channel
// is logged and reported in its Outcome but never blocks or aborts the
// others. Long text is split to each channel's limit; continuation chunks
// and the overflow text are threaded as replies.
package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sillyreader/internal/channel"
	"sillyreader/internal/compose"
	"sillyreader/internal/eventbus"
	logx "sillyreader/pkg/logx"
)

var ErrEmptyPayload = errors.New("empty payload")

type Config struct {
	// PostTimeout bounds one channel's whole delivery (primary + replies).
	PostTimeout time.Duration
	// RatePerSec limits calls per channel.
	RatePerSec int
	// RetryFailed re-attempts, once per cycle, channels whose primary post
	// failed. Channels that published anything are never retried.
	RetryFailed bool
	RetryDelay  time.Duration
}

// Outcome is the result of delivering to one channel.
type Outcome struct {
	Channel   string
	PrimaryID channel.PostID
	ReplyIDs  []channel.PostID
	Sent      int // posts published, primary included
	Attempts  int
	Err       error
	Took      time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Published reports whether the primary post went out.
func (o Outcome) Published() bool { return o.Sent > 0 }

// Event is published on the bus for each channel delivery.
type Event struct {
	Channel string        `json:"channel"`
	Posts   int           `json:"posts"`
	Took    time.Duration `json:"took"`
	Error   string        `json:"error,omitempty"`
}

type Dispatcher struct {
	mu       sync.Mutex
	cfg      Config
	channels []channel.Channel
	limiters map[string]*rate.Limiter

	log logx.Logger
	bus eventbus.Bus
}

func New(cfg Config, channels []channel.Channel, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{log: log.With(logx.String("comp", "dispatch")), bus: bus}
	d.Apply(cfg)
	d.SetChannels(channels)
	return d
}

// Apply swaps the delivery settings. Rate limiters are rebuilt.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 30 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiters = make(map[string]*rate.Limiter, len(d.channels))
	for _, ch := range d.channels {
		d.limiters[ch.Name()] = newLimiter(cfg.RatePerSec)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) SetChannels(channels []channel.Channel) {
	d.mu.Lock()
	d.channels = append([]channel.Channel(nil), channels...)
	d.limiters = make(map[string]*rate.Limiter, len(channels))
	for _, ch := range channels {
		d.limiters[ch.Name()] = newLimiter(d.cfg.RatePerSec)
	}
	d.mu.Unlock()
}

// Channels returns the configured channel names in order.
func (d *Dispatcher) Channels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

func newLimiter(rps int) *rate.Limiter {
	// Burst = rate so a primary plus a couple of replies go out together.
	return rate.NewLimiter(rate.Limit(rps), max(rps, 3))
}

// Dispatch delivers p to every channel and returns one Outcome per channel
// in configuration order.
func (d *Dispatcher) Dispatch(ctx context.Context, p compose.Payload) []Outcome {
	d.mu.Lock()
	cfg := d.cfg
	chs := append([]channel.Channel(nil), d.channels...)
	lims := make([]*rate.Limiter, len(chs))
	for i, ch := range chs {
		lims[i] = d.limiters[ch.Name()]
	}
	d.mu.Unlock()

	out := make([]Outcome, len(chs))
	var wg sync.WaitGroup
	for i, ch := range chs {
		wg.Add(1)
		go func(i int, ch channel.Channel, lim *rate.Limiter) {
			defer wg.Done()
			out[i] = d.deliverWithRetry(ctx, cfg, ch, lim, p)
		}(i, ch, lims[i])
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, cfg Config, ch channel.Channel, lim *rate.Limiter, p compose.Payload) Outcome {
	start := time.Now()
	log := d.log.With(logx.String("channel", ch.Name()))

	o := d.deliver(ctx, cfg, ch, lim, p)
	o.Attempts = 1
	if o.Err != nil && cfg.RetryFailed && o.Sent == 0 && ctx.Err() == nil {
		log.Warn("channel delivery failed, retrying once", logx.Err(o.Err))
		t := time.NewTimer(retryDelay(cfg.RetryDelay))
		select {
		case <-t.C:
			o = d.deliver(ctx, cfg, ch, lim, p)
			o.Attempts = 2
		case <-ctx.Done():
			t.Stop()
		}
	}
	o.Channel = ch.Name()
	o.Took = time.Since(start)

	ev := Event{Channel: o.Channel, Took: o.Took, Posts: o.Sent}
	if o.Err != nil {
		ev.Error = o.Err.Error()
		log.Error("channel delivery failed", logx.Err(o.Err), logx.Int("attempts", o.Attempts), logx.Duration("took", o.Took))
		d.publish(eventbus.TypeFailed, ev)
	} else {
		log.Info("channel delivered", logx.Int("posts", ev.Posts), logx.Duration("took", o.Took))
		d.publish(eventbus.TypeSent, ev)
	}
	return o
}

func (d *Dispatcher) publish(typ string, ev Event) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

// deliver posts the primary (with image when possible), then threads the
// continuation chunks and overflow as replies, each replying to the post
// before it.
func (d *Dispatcher) deliver(ctx context.Context, cfg Config, ch channel.Channel, lim *rate.Limiter, p compose.Payload) Outcome {
	var o Outcome
	if strings.TrimSpace(p.Primary) == "" {
		o.Err = ErrEmptyPayload
		return o
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.PostTimeout)
	defer cancel()

	wait := func() error {
		if lim == nil {
			return cctx.Err()
		}
		return lim.Wait(cctx)
	}

	measure := channel.MeasureOf(ch)
	var rest []string
	if len(p.Image) > 0 && channel.SupportsMedia(ch) {
		chunks := channel.SplitMeasured(p.Primary, channel.CaptionLimit(ch), measure)
		if err := wait(); err != nil {
			o.Err = err
			return o
		}
		id, err := ch.PostImage(cctx, chunks[0], p.Image)
		if err != nil {
			o.Err = err
			return o
		}
		o.PrimaryID = id
		o.Sent++
		if len(chunks) > 1 {
			rest = channel.SplitMeasured(strings.Join(chunks[1:], "\n"), channel.TextLimit(ch), measure)
		}
	} else {
		chunks := channel.SplitMeasured(p.Primary, channel.TextLimit(ch), measure)
		if err := wait(); err != nil {
			o.Err = err
			return o
		}
		id, err := ch.Post(cctx, chunks[0])
		if err != nil {
			o.Err = err
			return o
		}
		o.PrimaryID = id
		o.Sent++
		rest = chunks[1:]
	}

	if p.Overflow != "" {
		rest = append(rest, channel.SplitMeasured(p.Overflow, channel.TextLimit(ch), measure)...)
	}

	parent := o.PrimaryID
	for _, chunk := range rest {
		if err := wait(); err != nil {
			o.Err = err
			return o
		}
		id, err := ch.Reply(cctx, parent, chunk)
		if err != nil {
			o.Err = err
			return o
		}
		o.ReplyIDs = append(o.ReplyIDs, id)
		o.Sent++
		if id != "" {
			parent = id
		}
	}
	return o
}

// retryDelay applies 0.7..1.3 jitter to base.
func retryDelay(base time.Duration) time.Duration {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	j := 0.7 + rng.Float64()*0.6
	return time.Duration(float64(base) * j)
}
