package ui

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"InkJournal/internal/state"
)

// strokeView is a stroke as the view draws it.
type strokeView struct {
	coords []float64
	color  color.NRGBA
	width  float64
}

// pageView is a copy of one page taken on the loop, so the fyne thread
// never touches the journal.
type pageView struct {
	num, count    int
	width, height float64
	fill          color.NRGBA
	rulings       []state.Line
	img           image.Image
	strokes       []strokeView
}

// snapshot copies page n of j. Stroke coordinates are shared; strokes are
// never modified once created.
func snapshot(j *state.Journal, n int) pageView {
	if j == nil || len(j.Pages) == 0 {
		return pageView{}
	}
	n = max(1, min(n, len(j.Pages)))
	pg := j.Pages[n-1]
	v := pageView{
		num:    n,
		count:  len(j.Pages),
		width:  pg.Width,
		height: pg.Height,
		fill:   color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
	switch bg := pg.Bg; bg.Type {
	case state.BgSolid:
		v.fill = bg.Color.NRGBA()
		v.rulings = state.RulingLines(bg.Ruling, pg.Width, pg.Height)
	case state.BgPixmap, state.BgPDF:
		if bg.Pixmap != nil {
			v.img = bg.Pixmap.Image
		}
	}
	for _, l := range pg.Layers {
		for _, s := range l.Strokes() {
			v.strokes = append(v.strokes, strokeView{
				coords: s.Coords,
				color:  s.Brush.Color.NRGBA(),
				width:  s.Brush.Thickness,
			})
		}
	}
	return v
}

func (v pageView) status(path string, zoom float64) string {
	name := "Untitled"
	if path != "" {
		name = filepath.Base(path)
	}
	if v.count == 0 {
		return name
	}
	return fmt.Sprintf("%s  page %d of %d  %.0f%%", name, v.num, v.count, zoom*100)
}
