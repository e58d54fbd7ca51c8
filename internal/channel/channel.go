// Package channel defines the outbound messaging destinations.
//
// A Channel needs three operations: post text, post text with an image and
// reply to an earlier post. Limits and media support are optional
// interfaces; the dispatcher falls back to conservative defaults.
package channel

import (
	"context"
	"errors"
)

// PostID identifies a published post within its channel.
type PostID string

type Channel interface {
	Name() string
	Post(ctx context.Context, text string) (PostID, error)
	PostImage(ctx context.Context, text string, png []byte) (PostID, error)
	Reply(ctx context.Context, parent PostID, text string) (PostID, error)
}

// TextLimiter reports the maximum length of a text post, in runes unless
// the channel is also a Measurer.
type TextLimiter interface {
	TextLimit() int
}

// CaptionLimiter reports the maximum length of text attached to an image.
type CaptionLimiter interface {
	CaptionLimit() int
}

// Measurer is implemented by channels whose limits are not counted in
// runes.
type Measurer interface {
	MeasureRune(r rune) int
}

// MediaSupporter reports whether PostImage is usable.
type MediaSupporter interface {
	SupportsMedia() bool
}

// Closer is implemented by channels that hold resources.
type Closer interface {
	Close() error
}

const DefaultTextLimit = 2000

var ErrNoMedia = errors.New("channel does not support media")

// TextLimit returns ch's text limit, or DefaultTextLimit.
func TextLimit(ch Channel) int {
	if l, ok := ch.(TextLimiter); ok && l.TextLimit() > 0 {
		return l.TextLimit()
	}
	return DefaultTextLimit
}

// CaptionLimit returns ch's caption limit, falling back to its text limit.
func CaptionLimit(ch Channel) int {
	if l, ok := ch.(CaptionLimiter); ok && l.CaptionLimit() > 0 {
		return l.CaptionLimit()
	}
	return TextLimit(ch)
}

// MeasureOf returns the Measure ch's limits are expressed in.
func MeasureOf(ch Channel) Measure {
	if m, ok := ch.(Measurer); ok {
		return m.MeasureRune
	}
	return nil
}

// SupportsMedia reports whether images should be sent to ch. Channels
// without a MediaSupporter are assumed to support media.
func SupportsMedia(ch Channel) bool {
	if m, ok := ch.(MediaSupporter); ok {
		return m.SupportsMedia()
	}
	return true
}
