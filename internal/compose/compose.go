// Package compose turns a status into announcement text.
//
// Every status.Kind has exactly one template. Templates are pure: the same
// status and config always produce the same Payload.
package compose

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sillyreader/internal/status"
)

// TimeLayout renders instants the way the game community writes them.
const TimeLayout = "Mon, Jan 2 2006, 3:04 PM"

const (
	DefaultZone         = "America/Los_Angeles"
	defaultErrorBackoff = 5 * time.Minute
	zoneSuffix          = " Toontown Time"
)

// Payload is one announcement. Overflow, when set, is posted as a reply to
// Primary. Image is filled in by the caller.
type Payload struct {
	Primary  string
	Overflow string
	Image    []byte
}

// Empty reports whether there is nothing to post.
func (p Payload) Empty() bool { return p.Primary == "" && p.Overflow == "" }

// Config controls formatting.
type Config struct {
	// Location is the event zone. nil means DefaultZone, or UTC if the zone
	// database is unavailable.
	Location *time.Location

	// SplitBudget governs where the upcoming reward list goes while the
	// meter cools down. 0 always moves it to Overflow; n > 0 keeps it in
	// Primary when the combined text fits in n runes.
	SplitBudget int

	// ErrorBackoff is quoted in fetch error announcements.
	ErrorBackoff time.Duration
}

type template func(c *Composer, st status.Status) (primary, overflow string)

var templates = map[status.Kind]template{
	status.Active:       (*Composer).active,
	status.RewardActive: (*Composer).reward,
	status.CoolingDown:  (*Composer).coolingDown,
	status.Unknown:      (*Composer).unknown,
	status.FetchError:   (*Composer).fetchError,
}

// Composer is safe for concurrent use.
type Composer struct {
	cfg Config
}

func New(cfg Config) *Composer {
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	if cfg.SplitBudget < 0 {
		cfg.SplitBudget = 0
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	return &Composer{cfg: cfg}
}

func (c *Composer) Location() *time.Location { return c.cfg.Location }

// Compose builds the announcement for st. Text is never truncated; length
// limits belong to the channels.
func (c *Composer) Compose(st status.Status) Payload {
	tpl, ok := templates[st.State]
	if !ok {
		tpl = (*Composer).unknown
	}
	primary, overflow := tpl(c, st)

	trailer := "\n\nLast Updated: " + c.FormatTime(st.AsOf)
	if overflow != "" {
		overflow += trailer
	} else {
		primary += trailer
	}
	return Payload{Primary: primary, Overflow: overflow}
}

// FormatTime renders t in the event zone.
func (c *Composer) FormatTime(t time.Time) string { return FormatTime(t, c.cfg.Location) }

// FormatTime renders t in loc with the "Toontown Time" suffix. A nil loc
// means UTC.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimeLayout) + zoneSuffix
}

func (c *Composer) active(st status.Status) (string, string) {
	return "The Silly Meter is now active with the following Silly Teams:\n" + enumerate(st.Rewards()), ""
}

func (c *Composer) reward(st status.Status) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s reward is now active throughout Toontown!\n\n", st.Winner)
	fmt.Fprintf(&b, "The reward will last until %s.", c.FormatTime(st.NextUpdateAt))
	return b.String(), ""
}

func (c *Composer) coolingDown(st status.Status) (string, string) {
	primary := "The reward has ended and the Silly Meter is now cooling down.\n\n" +
		"It will start up again on " + c.FormatTime(st.NextUpdateAt) + "."
	if st.NumRewards() == 0 {
		return primary, ""
	}
	upcoming := "Here are the next upcoming Silly Teams:\n" + enumerate(st.Rewards())

	if c.cfg.SplitBudget > 0 {
		joined := primary + "\n\n" + upcoming
		trailerLen := utf8.RuneCountInString("\n\nLast Updated: " + c.FormatTime(st.AsOf))
		if utf8.RuneCountInString(joined)+trailerLen <= c.cfg.SplitBudget {
			return joined, ""
		}
	}
	return primary, upcoming
}

func (c *Composer) unknown(st status.Status) (string, string) {
	return fmt.Sprintf("Landed in an unknown Silly Meter state '%s'.", st.RawState), ""
}

func (c *Composer) fetchError(st status.Status) (string, string) {
	at := c.FormatTime(st.AsOf)
	var b strings.Builder
	if st.ErrorCode == 0 {
		fmt.Fprintf(&b, "The Silly Meter server could not be reached at %s.", at)
	} else {
		fmt.Fprintf(&b, "The Silly Meter server returned a %d error code at %s.", st.ErrorCode, at)
	}
	b.WriteString("\n\nTrying again in " + humanDuration(c.cfg.ErrorBackoff) + ".")
	return b.String(), ""
}

// enumerate renders a 1-indexed list, one entry per line, each preceded by
// a newline.
func enumerate(names []string) string {
	var b strings.Builder
	for i, name := range names {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(name)
	}
	return b.String()
}

func humanDuration(d time.Duration) string {
	unit := func(n int64, word string) string {
		if n == 1 {
			return "1 " + word
		}
		return strconv.FormatInt(n, 10) + " " + word + "s"
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return unit(int64(d/time.Second), "second")
	default:
		return d.String()
	}
}
