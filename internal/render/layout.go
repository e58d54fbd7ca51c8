package render

import (
	"image"
	"image/color"
	"time"

	"sillyreader/internal/compose"
	"sillyreader/internal/status"
)

// Canvas geometry. Coordinates are pixels from the top-left corner; text Y
// is the top of the first line.
const (
	CanvasWidth  = 1280
	CanvasHeight = 720

	// Pitch is the horizontal distance between reward slots. Icons and
	// captions both step by it so slot k stays aligned.
	Pitch = 350

	ShadowOffset = 2
)

var (
	Gold  = color.NRGBA{R: 255, G: 187, B: 87, A: 255}
	White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.NRGBA{A: 255}

	// DefaultFill paints the canvas when the background template is missing.
	DefaultFill = color.NRGBA{R: 34, G: 82, B: 160, A: 255}
)

// Asset names relative to the assets directory.
const (
	BackgroundAsset  = "template.png"
	ReaderAsset      = "sillyreader.png"
	UnknownIconAsset = "icons/sillymeter_unknown.png"
	FontAsset        = "ImpressBT.ttf"
)

var rewardIcons = map[string]string{
	"Overjoyed Laff Meters":     "icons/sillymeter_laffteam.png",
	"Decreased Fish Rarity":     "icons/sillymeter_fishteam.png",
	"Double Jellybeans":         "icons/sillymeter_beanteam.png",
	"Speedy Garden Growth":      "icons/sillymeter_gardenteam.png",
	"Double Racing Tickets":     "icons/sillymeter_racingteam.png",
	"Global Teleport Access":    "icons/sillymeter_teleportteam.png",
	"Doodle Trick Boost":        "icons/sillymeter_trickteam.png",
	"Double Toon-Up Experience": "icons/sillymeter_toonupteam.png",
	"Double Trap Experience":    "icons/sillymeter_trapteam.png",
	"Double Lure Experience":    "icons/sillymeter_lureteam.png",
	"Double Sound Experience":   "icons/sillymeter_soundteam.png",
	"Double Throw Experience":   "icons/sillymeter_throwteam.png",
	"Double Squirt Experience":  "icons/sillymeter_squirtteam.png",
	"Double Drop Experience":    "icons/sillymeter_dropteam.png",
}

// IconFor maps a reward name to its icon asset. Unrecognized names get the
// unknown icon.
func IconFor(reward string) string {
	if p, ok := rewardIcons[reward]; ok {
		return p
	}
	return UnknownIconAsset
}

type Align int

const (
	AlignLeft Align = iota
	// AlignCenter treats X as the horizontal centre of every line.
	AlignCenter
)

type TextLayer struct {
	Text      string
	X, Y      int
	Size      float64
	Color     color.NRGBA
	Shadow    bool
	Align     Align
	WrapWidth int // characters; 0 disables wrapping
}

// IconLayer places an asset. Size 0 keeps the asset's own dimensions.
type IconLayer struct {
	Asset string
	X, Y  int
	Size  int
}

// Slot is one reward in the repeating slot row.
type Slot struct {
	Reward      string
	Description string
}

// SlotLayout is the geometry shared by every reward slot. BaseTextX is the
// centre line of the caption.
type SlotLayout struct {
	BaseIconX, BaseIconY int
	BaseTextX, BaseTextY int
	Pitch                int
	IconSize             int
	CaptionSize          float64
	CaptionWrap          int
	CaptionColor         color.NRGBA
	DescriptionSize      float64
	DescriptionWrap      int
	DescriptionColor     color.NRGBA
	ShowDescription      bool
}

// IconAt is the top-left corner of slot k's icon.
func (l SlotLayout) IconAt(k int) image.Point {
	return image.Pt(l.BaseIconX+k*l.Pitch, l.BaseIconY)
}

// CaptionAt is the anchor of slot k's caption.
func (l SlotLayout) CaptionAt(k int) image.Point {
	return image.Pt(l.BaseTextX+k*l.Pitch, l.BaseTextY)
}

// CanvasSpec fully describes one image. Rendering order is background,
// icons, slot icons, texts, slot captions.
type CanvasSpec struct {
	Width, Height int
	Background    string
	Fill          color.NRGBA

	Texts []TextLayer
	Icons []IconLayer

	Slots      []Slot
	SlotLayout SlotLayout
}

// Layout derives the canvas for st. It reports false for states that have
// no image.
func Layout(st status.Status, loc *time.Location) (CanvasSpec, bool) {
	var spec CanvasSpec
	switch st.State {
	case status.Active:
		spec = activeCanvas(st)
	case status.RewardActive:
		spec = rewardCanvas(st, loc)
	case status.CoolingDown:
		spec = coolingCanvas(st, loc)
	default:
		return CanvasSpec{}, false
	}
	addFooter(&spec, st, loc)
	return spec, true
}

func baseCanvas() CanvasSpec {
	return CanvasSpec{
		Width:      CanvasWidth,
		Height:     CanvasHeight,
		Background: BackgroundAsset,
		Fill:       DefaultFill,
	}
}

func rowLayout() SlotLayout {
	return SlotLayout{
		BaseIconX:    246,
		BaseIconY:    259,
		BaseTextX:    246 + 75,
		BaseTextY:    425,
		Pitch:        Pitch,
		IconSize:     150,
		CaptionSize:  40,
		CaptionWrap:  15,
		CaptionColor: Gold,
	}
}

func slotsFor(rewards []string) []Slot {
	slots := make([]Slot, 0, len(rewards))
	for _, r := range rewards {
		slots = append(slots, Slot{Reward: r})
	}
	return slots
}

func activeCanvas(st status.Status) CanvasSpec {
	spec := baseCanvas()
	spec.Texts = append(spec.Texts, TextLayer{
		Text: "The Silly Meter is active!", X: 417, Y: 23, Size: 50, Color: Gold, Shadow: true,
	})
	spec.Slots = slotsFor(st.Rewards())
	spec.SlotLayout = rowLayout()
	return spec
}

func rewardCanvas(st status.Status, loc *time.Location) CanvasSpec {
	spec := baseCanvas()
	spec.Texts = append(spec.Texts, TextLayer{
		Text: "A Silly reward is active!", X: CanvasWidth / 2, Y: 23, Size: 50, Color: Gold, Shadow: true, Align: AlignCenter,
	})

	l := rowLayout()
	l.BaseIconX = CanvasWidth/2 - l.IconSize/2
	l.BaseIconY = 140
	l.BaseTextX = CanvasWidth / 2
	l.BaseTextY = 305
	l.CaptionWrap = 30
	l.DescriptionSize = 32
	l.DescriptionWrap = 40
	l.DescriptionColor = White
	l.ShowDescription = true
	spec.SlotLayout = l
	spec.Slots = []Slot{{
		Reward:      st.Winner,
		Description: "Lasts until " + compose.FormatTime(st.NextUpdateAt, loc),
	}}
	return spec
}

func coolingCanvas(st status.Status, loc *time.Location) CanvasSpec {
	spec := baseCanvas()
	spec.Texts = append(spec.Texts,
		TextLayer{
			Text: "The Silly Meter is cooling down.", X: CanvasWidth / 2, Y: 23, Size: 50, Color: Gold, Shadow: true, Align: AlignCenter,
		},
		TextLayer{
			Text: "Starts again " + compose.FormatTime(st.NextUpdateAt, loc), X: CanvasWidth / 2, Y: 95, Size: 32, Color: White, Shadow: true, Align: AlignCenter,
		},
	)
	if st.NumRewards() > 0 {
		spec.Texts = append(spec.Texts, TextLayer{
			Text: "Upcoming Silly Teams", X: CanvasWidth / 2, Y: 175, Size: 40, Color: Gold, Shadow: true, Align: AlignCenter,
		})
		spec.Slots = slotsFor(st.Rewards())
		spec.SlotLayout = rowLayout()
	}
	return spec
}

func addFooter(spec *CanvasSpec, st status.Status, loc *time.Location) {
	spec.Icons = append(spec.Icons, IconLayer{Asset: ReaderAsset, X: 25, Y: 544})
	spec.Texts = append(spec.Texts, TextLayer{
		Text: "Last Updated: " + compose.FormatTime(st.AsOf, loc), X: 200, Y: 669, Size: 40, Color: White, Shadow: true,
	})
}
