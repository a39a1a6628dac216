package state

import (
	"image/color"

	"seehuhn.de/go/geom/rect"
)

// Tool is the instrument a stroke was drawn with.
type Tool int

const (
	ToolPen Tool = iota
	ToolEraser
	ToolHighlighter
)

var toolNames = [...]string{"pen", "eraser", "highlighter"}

func (t Tool) String() string {
	if t < 0 || int(t) >= len(toolNames) {
		return ""
	}
	return toolNames[t]
}

// ParseTool maps a tool name back to its Tool.
func ParseTool(s string) (Tool, bool) {
	for i, name := range toolNames {
		if s == name {
			return Tool(i), true
		}
	}
	return 0, false
}

// HighlighterAlpha is the alpha every highlighter stroke is drawn with.
const HighlighterAlpha = 0x80

// ColorOther marks a Color that is not a palette entry.
const ColorOther = -1

// Color is either a palette entry (Index >= 0) or an explicit RGBA value
// packed as 0xRRGGBBAA.
type Color struct {
	Index int
	RGBA  uint32
}

// RGBAColor returns an explicit, non-palette color.
func RGBAColor(rgba uint32) Color {
	return Color{Index: ColorOther, RGBA: rgba}
}

// Named reports whether c came from a palette.
func (c Color) Named() bool { return c.Index >= 0 }

// NRGBA converts c for drawing.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{
		R: uint8(c.RGBA >> 24),
		G: uint8(c.RGBA >> 16),
		B: uint8(c.RGBA >> 8),
		A: uint8(c.RGBA),
	}
}

// WithAlpha returns c with its alpha byte replaced.
func (c Color) WithAlpha(a uint8) Color {
	c.RGBA = c.RGBA&^0xff | uint32(a)
	return c
}

// Palette is a fixed list of named colors.
type Palette []struct {
	Name string
	RGBA uint32
}

// Lookup finds a color by name.
func (p Palette) Lookup(name string) (Color, bool) {
	for i, e := range p {
		if e.Name == name {
			return Color{Index: i, RGBA: e.RGBA}, true
		}
	}
	return Color{}, false
}

// Name returns the palette name of c, if c is a palette entry of p.
func (p Palette) Name(c Color) (string, bool) {
	if c.Index < 0 || c.Index >= len(p) {
		return "", false
	}
	return p[c.Index].Name, true
}

// PenColors are the stroke colors.
var PenColors = Palette{
	{"black", 0x000000ff},
	{"blue", 0x3333ccff},
	{"red", 0xff0000ff},
	{"green", 0x008000ff},
	{"gray", 0x808080ff},
	{"lightblue", 0x00c0ffff},
	{"lightgreen", 0x00ff00ff},
	{"magenta", 0xff00ffff},
	{"orange", 0xff8000ff},
	{"yellow", 0xffff00ff},
	{"white", 0xffffffff},
}

// PaperColors are the solid background colors.
var PaperColors = Palette{
	{"white", 0xffffffff},
	{"blue", 0xa0e8ffff},
	{"pink", 0xffc0d4ff},
	{"green", 0x80ffc0ff},
	{"orange", 0xffc080ff},
	{"yellow", 0xffff80ff},
}

// Brush describes how a stroke is drawn.
type Brush struct {
	Tool      Tool
	Color     Color
	Thickness float64
}

// Item is anything a layer can hold. Strokes are the only kind so far.
type Item interface {
	BBox() rect.Rect
}

// Stroke is a polyline. Coords holds x0,y0,x1,y1,... and always has an even
// number of values, at least four.
type Stroke struct {
	Brush  Brush
	Coords []float64
	bbox   rect.Rect
}

// NewStroke copies coords into a new stroke and computes its bounding box.
func NewStroke(b Brush, coords []float64) *Stroke {
	s := &Stroke{Brush: b, Coords: append([]float64(nil), coords...)}
	s.UpdateBBox()
	return s
}

// NumPoints returns the number of x,y pairs.
func (s *Stroke) NumPoints() int { return len(s.Coords) / 2 }

func (s *Stroke) BBox() rect.Rect { return s.bbox }

// UpdateBBox recomputes the cached bounding box, padded by half the brush
// thickness on every side.
func (s *Stroke) UpdateBBox() {
	if len(s.Coords) < 2 {
		s.bbox = rect.Rect{}
		return
	}
	minX, minY := s.Coords[0], s.Coords[1]
	maxX, maxY := minX, minY
	for i := 2; i+1 < len(s.Coords); i += 2 {
		x, y := s.Coords[i], s.Coords[i+1]
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	pad := s.Brush.Thickness / 2
	s.bbox = rect.Rect{
		LLx: minX - pad,
		LLy: minY - pad,
		URx: maxX + pad,
		URy: maxY + pad,
	}
}

// Layer holds items bottom to top.
type Layer struct {
	Items []Item
}

// Strokes returns the stroke items of the layer in z-order.
func (l *Layer) Strokes() []*Stroke {
	res := make([]*Stroke, 0, len(l.Items))
	for _, it := range l.Items {
		if s, ok := it.(*Stroke); ok {
			res = append(res, s)
		}
	}
	return res
}
