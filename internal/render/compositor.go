// Package render draws the announcement image for a status.
//
// Output is deterministic: the same status and asset directory always give
// the same PNG bytes.
package render

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"sillyreader/internal/status"
	logx "sillyreader/pkg/logx"
)

// ErrNoCanvas is returned for states that are announced without an image.
var ErrNoCanvas = errors.New("no canvas for state")

const shadowBlurRadius = 1

type Config struct {
	// AssetsDir holds template.png, sillyreader.png, ImpressBT.ttf and
	// icons/. Empty means every asset uses its placeholder.
	AssetsDir string
	Location  *time.Location
}

// Compositor renders canvases. Font faces are not safe for concurrent use,
// so Render calls are serialized.
type Compositor struct {
	loc    *time.Location
	log    logx.Logger
	assets *assets

	mu sync.Mutex
}

func New(cfg Config, log logx.Logger) *Compositor {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "render"))
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Compositor{loc: loc, log: log, assets: newAssets(cfg.AssetsDir, log)}
}

// Close releases cached font faces.
func (c *Compositor) Close() {
	c.assets.close()
}

// Render lays out and draws st. It returns ErrNoCanvas for states without
// an image.
func (c *Compositor) Render(st status.Status) ([]byte, error) {
	spec, ok := Layout(st, c.loc)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCanvas, st.State)
	}
	return c.RenderSpec(spec)
}

// RenderSpec draws spec and encodes it as PNG.
func (c *Compositor) RenderSpec(spec CanvasSpec) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	canvas := c.background(spec)

	for _, ic := range spec.Icons {
		c.drawIcon(canvas, c.assets.icon(ic.Asset, ic.Asset), image.Pt(ic.X, ic.Y), ic.Size)
	}

	l := spec.SlotLayout
	for k, slot := range spec.Slots {
		c.drawIcon(canvas, c.assets.icon(IconFor(slot.Reward), slot.Reward), l.IconAt(k), l.IconSize)
	}

	for _, t := range spec.Texts {
		if err := c.drawText(canvas, t); err != nil {
			return nil, err
		}
	}

	for k, slot := range spec.Slots {
		at := l.CaptionAt(k)
		caption := TextLayer{
			Text: slot.Reward, X: at.X, Y: at.Y, Size: l.CaptionSize,
			Color: l.CaptionColor, Shadow: true, Align: AlignCenter, WrapWidth: l.CaptionWrap,
		}
		if err := c.drawText(canvas, caption); err != nil {
			return nil, err
		}
		if !l.ShowDescription || slot.Description == "" {
			continue
		}
		h, err := c.blockHeight(caption)
		if err != nil {
			return nil, err
		}
		desc := TextLayer{
			Text: slot.Description, X: at.X, Y: at.Y + h + 10, Size: l.DescriptionSize,
			Color: l.DescriptionColor, Shadow: true, Align: AlignCenter, WrapWidth: l.DescriptionWrap,
		}
		if err := c.drawText(canvas, desc); err != nil {
			return nil, err
		}
	}

	return encodePNG(canvas)
}

func (c *Compositor) background(spec CanvasSpec) *image.RGBA {
	if spec.Background != "" {
		if bg, ok := c.assets.image(spec.Background); ok {
			b := bg.Bounds()
			canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(canvas, canvas.Bounds(), bg, b.Min, draw.Src)
			return canvas
		}
	}
	w, h := spec.Width, spec.Height
	if w <= 0 || h <= 0 {
		w, h = CanvasWidth, CanvasHeight
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(canvas, spec.Fill)
	return canvas
}

func (c *Compositor) drawIcon(dst draw.Image, icon image.Image, at image.Point, size int) {
	src := scaled(icon, size)
	sb := src.Bounds()
	r := image.Rectangle{Min: at, Max: at.Add(sb.Size())}
	draw.Draw(dst, r, src, sb.Min, draw.Over)
}

// wrapText breaks s at word boundaries, then hard-breaks words longer than
// width characters.
func wrapText(s string, width int) []string {
	if width > 0 {
		s = wrap.String(wordwrap.String(s, width), width)
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

func (c *Compositor) blockHeight(t TextLayer) (int, error) {
	face, err := c.assets.face(t.Size)
	if err != nil {
		return 0, err
	}
	n := len(wrapText(t.Text, t.WrapWidth))
	return (face.Metrics().Height * fixed.Int26_6(n)).Ceil(), nil
}

// drawText renders t onto dst. With Shadow set, a blurred black copy is
// composited at (x+2, y+2) before the foreground is drawn.
func (c *Compositor) drawText(dst draw.Image, t TextLayer) error {
	if strings.TrimSpace(t.Text) == "" {
		return nil
	}
	face, err := c.assets.face(t.Size)
	if err != nil {
		return err
	}
	lines := wrapText(t.Text, t.WrapWidth)
	m := face.Metrics()

	origins := make([]fixed.Point26_6, len(lines))
	var box fixed.Rectangle26_6
	for i, line := range lines {
		x := fixed.I(t.X)
		if t.Align == AlignCenter {
			x -= font.MeasureString(face, line) / 2
		}
		origins[i] = fixed.Point26_6{X: x, Y: fixed.I(t.Y) + m.Ascent + m.Height*fixed.Int26_6(i)}

		lb, _ := font.BoundString(face, line)
		lb = lb.Add(origins[i])
		if i == 0 {
			box = lb
		} else {
			box = box.Union(lb)
		}
	}

	if t.Shadow {
		pad := ShadowOffset + shadowBlurRadius + 1
		r := image.Rect(box.Min.X.Floor()-pad, box.Min.Y.Floor()-pad, box.Max.X.Ceil()+pad, box.Max.Y.Ceil()+pad)
		mask := image.NewAlpha(r)
		off := fixed.P(ShadowOffset, ShadowOffset)
		for i, line := range lines {
			d := &font.Drawer{Dst: mask, Src: image.Opaque, Face: face, Dot: origins[i].Add(off)}
			d.DrawString(line)
		}
		mask = boxBlur(mask, shadowBlurRadius)
		draw.DrawMask(dst, r, image.NewUniform(Black), image.Point{}, mask, r.Min, draw.Over)
	}

	src := image.NewUniform(t.Color)
	for i, line := range lines {
		d := &font.Drawer{Dst: dst, Src: src, Face: face, Dot: origins[i]}
		d.DrawString(line)
	}
	return nil
}
