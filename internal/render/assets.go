package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	logx "sillyreader/pkg/logx"
)

const placeholderSize = 150

// assets loads and caches images and font faces from a directory. Missing
// files are cached as misses and logged once.
type assets struct {
	dir string
	log logx.Logger

	mu     sync.Mutex
	images map[string]image.Image // nil value marks a miss
	font   *opentype.Font
	faces  map[float64]font.Face
}

func newAssets(dir string, log logx.Logger) *assets {
	return &assets{
		dir:    dir,
		log:    log,
		images: make(map[string]image.Image),
		faces:  make(map[float64]font.Face),
	}
}

// image returns the decoded asset, or false when it is missing or corrupt.
func (a *assets) image(name string) (image.Image, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if img, ok := a.images[name]; ok {
		return img, img != nil
	}
	img, err := a.decode(name)
	if err != nil {
		a.log.Warn("render asset unavailable, using placeholder", logx.String("asset", name), logx.Err(err))
		a.images[name] = nil
		return nil, false
	}
	a.images[name] = img
	return img, true
}

func (a *assets) decode(name string) (image.Image, error) {
	if strings.TrimSpace(a.dir) == "" {
		return nil, fs.ErrNotExist
	}
	b, err := os.ReadFile(filepath.Join(a.dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// face returns a cached face at size px. The bundled font is used when the
// configured one is missing.
func (a *assets) face(size float64) (font.Face, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok := a.faces[size]; ok {
		return f, nil
	}
	if a.font == nil {
		f, err := a.loadFont()
		if err != nil {
			return nil, err
		}
		a.font = f
	}
	f, err := opentype.NewFace(a.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	a.faces[size] = f
	return f, nil
}

func (a *assets) loadFont() (*opentype.Font, error) {
	if strings.TrimSpace(a.dir) != "" {
		b, err := os.ReadFile(filepath.Join(a.dir, FontAsset))
		if err == nil {
			var f *opentype.Font
			if f, err = opentype.Parse(b); err == nil {
				return f, nil
			}
		}
		a.log.Warn("render font unavailable, using bundled font", logx.String("asset", FontAsset), logx.Err(err))
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bundled font: %w", err)
	}
	return f, nil
}

func (a *assets) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for size, f := range a.faces {
		_ = f.Close()
		delete(a.faces, size)
	}
}

// icon resolves name through the unknown icon to a drawn placeholder.
func (a *assets) icon(name, label string) image.Image {
	if img, ok := a.image(name); ok {
		return img
	}
	if name != UnknownIconAsset {
		if img, ok := a.image(UnknownIconAsset); ok {
			return img
		}
	}
	return a.placeholder(label)
}

// placeholder draws a gold disc with the label's first letter.
func (a *assets) placeholder(label string) image.Image {
	letter := "?"
	if s := strings.TrimSpace(label); s != "" {
		letter = strings.ToUpper(string([]rune(s)[:1]))
	}
	key := "placeholder:" + letter
	a.mu.Lock()
	cached := a.images[key]
	a.mu.Unlock()
	if cached != nil {
		return cached
	}

	img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	r := placeholderSize / 2
	for y := 0; y < placeholderSize; y++ {
		for x := 0; x < placeholderSize; x++ {
			dx, dy := x-r, y-r
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, Gold)
			}
		}
	}

	face, err := a.face(96)
	if err != nil {
		return img
	}
	bounds, _ := font.BoundString(face, letter)
	w := (bounds.Max.X - bounds.Min.X).Ceil()
	h := (bounds.Max.Y - bounds.Min.Y).Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(White),
		Face: face,
		Dot:  fixed.P((placeholderSize-w)/2-bounds.Min.X.Floor(), (placeholderSize-h)/2-bounds.Min.Y.Floor()),
	}
	d.DrawString(letter)

	a.mu.Lock()
	a.images[key] = img
	a.mu.Unlock()
	return img
}

// scaled resizes src to size x size. Size 0 returns src unchanged.
func scaled(src image.Image, size int) image.Image {
	if size <= 0 || (src.Bounds().Dx() == size && src.Bounds().Dy() == size) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func fill(dst draw.Image, c color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// encodePNG pins the encoder settings so output bytes are stable.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
