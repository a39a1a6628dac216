package state

// Ruling geometry, in document units.
const (
	RulingThickness    = 0.5
	RulingLeftMargin   = 72.0
	RulingTopMargin    = 80.0
	RulingSpacing      = 24.0
	RulingGraphSpacing = 14.17
)

var (
	RulingColor       = RGBAColor(0x40a0ffff)
	RulingMarginColor = RGBAColor(0xff0080ff)
)

// Line is a straight ruling segment.
type Line struct {
	X1, Y1, X2, Y2 float64
	Color          Color
}

// RulingLines returns the lines a solid background of the given style
// draws on a page of size w by h.
func RulingLines(r Ruling, w, h float64) []Line {
	var lines []Line
	switch r {
	case RulingGraph:
		for x := RulingGraphSpacing; x < w-1; x += RulingGraphSpacing {
			lines = append(lines, Line{x, 0, x, h, RulingColor})
		}
		for y := RulingGraphSpacing; y < h-1; y += RulingGraphSpacing {
			lines = append(lines, Line{0, y, w, y, RulingColor})
		}
	case RulingLined, RulingRuled:
		for y := RulingTopMargin; y < h-1; y += RulingSpacing {
			lines = append(lines, Line{0, y, w, y, RulingColor})
		}
		if r == RulingLined {
			lines = append(lines, Line{RulingLeftMargin, 0, RulingLeftMargin, h, RulingMarginColor})
		}
	}
	return lines
}
