package plan

import "fmt"

// Action is the discriminator carried by every raw plan element.
type Action string

const (
	ActionCut     Action = "cut"
	ActionSpeed   Action = "speed"
	ActionSticker Action = "sticker"
	ActionMusic   Action = "music"
)

// Operation is one typed edit. The set of implementations is closed:
// Cut, SpeedChange, Sticker and Music.
type Operation interface {
	Action() Action
	// Index is the position of the operation in the raw plan array.
	Index() int
	Window() Interval
	isOperation()
}

// Interval is a [Start, End) range on the original timeline, in seconds.
type Interval struct {
	Start float64
	End   float64
}

func (iv Interval) Len() float64 { return iv.End - iv.Start }

func (iv Interval) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", iv.Start, iv.End)
}

// overlaps is the closed-interval test used for the cut/speed invariant.
func (iv Interval) overlaps(o Interval) bool {
	return iv.Start <= o.End && o.Start <= iv.End
}

type Cut struct {
	Idx   int
	Start float64
	End   float64
}

func (c Cut) Action() Action { return ActionCut }
func (c Cut) Index() int { return c.Idx }
func (c Cut) Window() Interval { return Interval{Start: c.Start, End: c.End} }
func (Cut) isOperation() {}

type SpeedChange struct {
	Idx   int
	Start float64
	End   float64
	Rate  float64
}

func (s SpeedChange) Action() Action { return ActionSpeed }
func (s SpeedChange) Index() int { return s.Idx }
func (s SpeedChange) Window() Interval { return Interval{Start: s.Start, End: s.End} }
func (SpeedChange) isOperation() {}

// Position is a named screen anchor for stickers.
type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	Center      Position = "center"
)

const (
	DefaultPosition = BottomRight
	DefaultFontSize = 72
	MaxFontSize     = 2048
)

// ContentKind tells which field of StickerContent is meaningful.
type ContentKind int

const (
	ContentEmoji ContentKind = iota
	ContentImage
	ContentText
)

func (k ContentKind) String() string {
	switch k {
	case ContentEmoji:
		return "emoji"
	case ContentImage:
		return "image"
	case ContentText:
		return "text"
	default:
		return "unknown"
	}
}

// StickerContent is an emoji glyph, an image reference (path, URL or name)
// or literal text.
type StickerContent struct {
	Kind  ContentKind
	Value string
}

type Sticker struct {
	Idx      int
	Start    float64
	End      float64
	Content  StickerContent
	Position Position
	// X and Y override Position only when both are set.
	X        *float64
	Y        *float64
	FontSize int
}

func (s Sticker) Action() Action { return ActionSticker }
func (s Sticker) Index() int { return s.Idx }
func (s Sticker) Window() Interval { return Interval{Start: s.Start, End: s.End} }
func (Sticker) isOperation() {}

// HasExplicitXY reports whether the sticker carries absolute coordinates.
func (s Sticker) HasExplicitXY() bool { return s.X != nil && s.Y != nil }

// SourceKind tells how a music reference is resolved.
type SourceKind int

const (
	SourceQuery SourceKind = iota
	SourceFile
	SourceURL
	SourceCatalog
)

func (k SourceKind) String() string {
	switch k {
	case SourceQuery:
		return "query"
	case SourceFile:
		return "file"
	case SourceURL:
		return "url"
	case SourceCatalog:
		return "catalog_id"
	default:
		return "unknown"
	}
}

type MusicSource struct {
	Kind  SourceKind
	Value string
}

const (
	DefaultVolume = 0.4
	DefaultFade   = 1.0
)

type Music struct {
	Idx    int
	Start  float64
	End    float64
	Source MusicSource
	Volume float64
	Loop   bool
	Fade   float64
}

func (m Music) Action() Action { return ActionMusic }
func (m Music) Index() int { return m.Idx }
func (m Music) Window() Interval { return Interval{Start: m.Start, End: m.End} }
func (Music) isOperation() {}

// Plan is the validated, ordered list of operations in authoring order.
type Plan struct {
	Ops []Operation
}

func (p Plan) Empty() bool { return len(p.Ops) == 0 }

// Stickers returns the sticker operations in plan order.
func (p Plan) Stickers() []Sticker {
	var out []Sticker
	for _, op := range p.Ops {
		if s, ok := op.(Sticker); ok {
			out = append(out, s)
		}
	}
	return out
}

// Music returns the music operations in plan order.
func (p Plan) Music() []Music {
	var out []Music
	for _, op := range p.Ops {
		if m, ok := op.(Music); ok {
			out = append(out, m)
		}
	}
	return out
}

// Retimes returns the cut and speed-change operations in plan order.
func (p Plan) Retimes() []Operation {
	var out []Operation
	for _, op := range p.Ops {
		switch op.(type) {
		case Cut, SpeedChange:
			out = append(out, op)
		}
	}
	return out
}

// Counts returns how many operations of each action the plan holds.
func (p Plan) Counts() map[Action]int {
	out := make(map[Action]int, 4)
	for _, op := range p.Ops {
		out[op.Action()]++
	}
	return out
}
