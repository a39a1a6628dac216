package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

// PageView shows one page of the journal: its background, ruling and
// strokes, scaled by the zoom factor.
type PageView struct {
	*container.Scroll
	content *fyne.Container

	page  pageView
	scale float32
}

func NewPageView() *PageView {
	v := &PageView{scale: 1}
	v.content = container.NewWithoutLayout()
	v.Scroll = container.NewScroll(v.content)
	return v
}

// Show replaces the displayed page. Must run on the fyne thread.
func (v *PageView) Show(p pageView, zoom float64) {
	rescaled := v.scale != float32(zoom)
	if v.page.num != p.num || rescaled {
		v.Scroll.Offset = fyne.NewPos(0, 0)
	}
	v.page = p
	v.scale = float32(zoom)
	v.render()
}

func (v *PageView) pos(x, y float64) fyne.Position {
	return fyne.NewPos(float32(x)*v.scale, float32(y)*v.scale)
}

func (v *PageView) render() {
	p := v.page
	size := fyne.NewSize(float32(p.width)*v.scale, float32(p.height)*v.scale)

	var objects []fyne.CanvasObject
	if p.count > 0 {
		paper := canvas.NewRectangle(p.fill)
		paper.SetMinSize(size)
		paper.Resize(size)
		objects = append(objects, paper)
		if p.img != nil {
			img := canvas.NewImageFromImage(p.img)
			img.FillMode = canvas.ImageFillStretch
			img.ScaleMode = canvas.ImageScaleSmooth
			img.Resize(size)
			objects = append(objects, img)
		}
		objects = append(objects, v.rulingLines()...)
		for _, s := range p.strokes {
			objects = append(objects, v.strokeToLines(s))
		}
	}

	v.content.Objects = objects
	v.content.Resize(size)
	v.Scroll.Refresh()
}

func (v *PageView) rulingLines() []fyne.CanvasObject {
	var lines []fyne.CanvasObject
	for _, l := range v.page.rulings {
		line := canvas.NewLine(l.Color.NRGBA())
		line.Position1 = v.pos(l.X1, l.Y1)
		line.Position2 = v.pos(l.X2, l.Y2)
		line.StrokeWidth = max(1, 0.5*v.scale)
		lines = append(lines, line)
	}
	return lines
}

func (v *PageView) strokeToLines(s strokeView) fyne.CanvasObject {
	var c color.Color = s.color
	var lines []fyne.CanvasObject
	for i := 2; i+1 < len(s.coords); i += 2 {
		line := canvas.NewLine(c)
		line.Position1 = v.pos(s.coords[i-2], s.coords[i-1])
		line.Position2 = v.pos(s.coords[i], s.coords[i+1])
		line.StrokeWidth = float32(s.width) * v.scale
		lines = append(lines, line)
	}
	return container.NewWithoutLayout(lines...)
}
