package status

import (
	"context"
	"strconv"
	"time"
)

// Kind is the closed set of Silly Meter states the service understands.
type Kind int

const (
	Unknown Kind = iota
	Active
	RewardActive
	CoolingDown
	FetchError
)

// Kinds lists every Kind. Composer and compositor tables are checked against it.
var Kinds = []Kind{Unknown, Active, RewardActive, CoolingDown, FetchError}

func (k Kind) String() string {
	switch k {
	case Active:
		return "active"
	case RewardActive:
		return "reward"
	case CoolingDown:
		return "cooling_down"
	case FetchError:
		return "fetch_error"
	default:
		return "unknown"
	}
}

// Wire values of the "state" field.
const (
	wireActive   = "Active"
	wireReward   = "Reward"
	wireInactive = "Inactive"
)

// KindFromWire maps the endpoint's state string onto a Kind.
func KindFromWire(s string) Kind {
	switch s {
	case wireActive:
		return Active
	case wireReward:
		return RewardActive
	case wireInactive:
		return CoolingDown
	default:
		return Unknown
	}
}

// Status is one parsed observation of the Silly Meter. Values are immutable:
// build them with New or Failed and read rewards through Rewards().
type Status struct {
	State        Kind
	RawState     string
	Winner       string
	AsOf         time.Time
	NextUpdateAt time.Time

	// FetchError only.
	ErrorCode int
	Err       error

	rewards []string
}

// New builds a successful observation. rewards is copied.
func New(raw string, rewards []string, winner string, asOf, next time.Time) Status {
	return Status{
		State:        KindFromWire(raw),
		RawState:     raw,
		Winner:       winner,
		AsOf:         asOf,
		NextUpdateAt: next,
		rewards:      append([]string(nil), rewards...),
	}
}

// Failed builds a FetchError observation. code is the HTTP status code, or 0
// when no response was received.
func Failed(code int, err error, at time.Time) Status {
	return Status{State: FetchError, ErrorCode: code, Err: err, AsOf: at}
}

// Rewards returns a copy of the reward names in source order.
func (s Status) Rewards() []string {
	return append([]string(nil), s.rewards...)
}

// NumRewards avoids a copy when only the count is needed.
func (s Status) NumRewards() int { return len(s.rewards) }

// OK reports whether the observation came from a successful fetch.
func (s Status) OK() bool { return s.State != FetchError }

// Key is the dedup key persisted as the last notified state.
//
// Known states use their wire names so state files written by earlier
// deployments stay valid. Fetch errors key on the literal status code so a
// change from one error code to another is announced once.
func (s Status) Key() string {
	switch s.State {
	case Active:
		return wireActive
	case RewardActive:
		return wireReward
	case CoolingDown:
		return wireInactive
	case FetchError:
		return strconv.Itoa(s.ErrorCode)
	default:
		return "Unknown:" + s.RawState
	}
}

// Source produces one Status per call. Implementations never return an
// error: failures are folded into a FetchError status.
type Source interface {
	Fetch(ctx context.Context) Status
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) Status

func (f SourceFunc) Fetch(ctx context.Context) Status { return f(ctx) }
