// Package export prints a journal to a PDF file.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"log"

	"github.com/jung-kurt/gofpdf"

	"InkJournal/internal/state"
)

// RasterFunc returns a print-resolution image of a page of the PDF
// background, if one is available.
type RasterFunc func(pdfPage int) (*state.Pixmap, bool)

// WritePDF renders every page of j into a PDF at path. PDF backgrounds
// are taken from raster when it has the page, from the page's own
// on-screen raster otherwise. raster may be nil.
func WritePDF(path string, j *state.Journal, raster RasterFunc) error {
	if len(j.Pages) == 0 {
		return errors.New("export: no pages")
	}
	first := j.Pages[0]
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	p.SetAutoPageBreak(false, 0)
	p.SetMargins(0, 0, 0)
	p.SetCreator("InkJournal", true)

	w := &writer{pdf: p, images: map[uint64]string{}}
	for _, pg := range j.Pages {
		p.AddPageFormat("P", gofpdf.SizeType{Wd: pg.Width, Ht: pg.Height})
		w.background(pg, raster)
		for _, l := range pg.Layers {
			for _, s := range l.Strokes() {
				w.stroke(s)
			}
		}
		if err := p.Error(); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	if err := p.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	log.Printf("[EXPORT] wrote %d pages to %s", len(j.Pages), path)
	return nil
}

type writer struct {
	pdf    *gofpdf.Fpdf
	images map[uint64]string
}

func (w *writer) background(pg *state.Page, raster RasterFunc) {
	bg := pg.Bg
	switch bg.Type {
	case state.BgSolid:
		c := bg.Color.NRGBA()
		w.pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
		w.pdf.Rect(0, 0, pg.Width, pg.Height, "F")
		w.pdf.SetLineWidth(state.RulingThickness)
		w.pdf.SetLineCapStyle("butt")
		for _, l := range state.RulingLines(bg.Ruling, pg.Width, pg.Height) {
			w.setDrawColor(l.Color)
			w.pdf.Line(l.X1, l.Y1, l.X2, l.Y2)
		}
	case state.BgPixmap:
		w.image(bg.Pixmap, pg)
	case state.BgPDF:
		pix := bg.Pixmap
		if raster != nil {
			if r, ok := raster(bg.PDFPage); ok {
				pix = r
			}
		}
		w.image(pix, pg)
	}
}

// image stretches pix over the page. Each pixmap is embedded once.
func (w *writer) image(pix *state.Pixmap, pg *state.Page) {
	if pix == nil || pix.Image == nil {
		return
	}
	name, ok := w.images[pix.ID()]
	if !ok {
		var buf bytes.Buffer
		if err := png.Encode(&buf, pix.Image); err != nil {
			w.pdf.SetError(err)
			return
		}
		name = fmt.Sprintf("pix%d", pix.ID())
		w.pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, &buf)
		w.images[pix.ID()] = name
	}
	w.pdf.ImageOptions(name, 0, 0, pg.Width, pg.Height, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
}

func (w *writer) setDrawColor(c state.Color) {
	n := c.NRGBA()
	w.pdf.SetDrawColor(int(n.R), int(n.G), int(n.B))
}

func (w *writer) stroke(s *state.Stroke) {
	if len(s.Coords) < 4 {
		return
	}
	w.setDrawColor(s.Brush.Color)
	w.pdf.SetLineWidth(s.Brush.Thickness)
	w.pdf.SetLineCapStyle("round")
	w.pdf.SetLineJoinStyle("round")
	alpha := s.Brush.Color.NRGBA().A
	if alpha != 0xff {
		w.pdf.SetAlpha(float64(alpha)/255, "Normal")
	}
	w.pdf.MoveTo(s.Coords[0], s.Coords[1])
	for i := 2; i+1 < len(s.Coords); i += 2 {
		w.pdf.LineTo(s.Coords[i], s.Coords[i+1])
	}
	w.pdf.DrawPath("D")
	if alpha != 0xff {
		w.pdf.SetAlpha(1, "Normal")
	}
}
