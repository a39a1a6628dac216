package bgpdf

import (
	"log"

	"InkJournal/internal/state"
)

func rasterSize(r Raster) (float64, float64) {
	w, h := r.Pixmap.Size()
	return float64(w) * 72 / float64(r.DPI), float64(h) * 72 / float64(r.DPI)
}

// createPageWithBg gives page n the raster as its background, appending the
// page if the journal is one short. Pages that no longer carry a plain
// solid background are left alone.
func (p *Pipeline) createPageWithBg(n int, r Raster) {
	j := p.journal
	if n > len(j.Pages)+1 {
		return
	}
	w, h := rasterSize(r)
	if n == len(j.Pages)+1 {
		bg := p.pdfBackground(n, r)
		pg := state.NewPageWithBg(bg, w, h)
		j.Pages = append(j.Pages, pg)
		log.Printf("[BGPDF] added page %d (%.0fx%.0f)", n, w, h)
		p.host.PageAdded(pg)
	} else {
		pg := j.Pages[n-1]
		if pg.Bg.Type != state.BgSolid {
			return
		}
		pg.Bg.Release()
		pg.Bg = p.pdfBackground(n, r)
		pg.Width, pg.Height = w, h
		p.host.PageResized(pg)
	}
	p.host.PagesChanged()
}

func (p *Pipeline) pdfBackground(n int, r Raster) *state.Background {
	return &state.Background{
		Type:     state.BgPDF,
		Domain:   p.domain,
		Filename: p.filename.Ref(),
		Pixmap:   r.Pixmap.Ref(),
		PDFPage:  n,
		DPI:      r.DPI,
	}
}

// updateBg pushes a new raster into every page showing page n of the PDF.
func (p *Pipeline) updateBg(n int, r Raster) {
	for _, pg := range p.journal.Pages {
		bg := pg.Bg
		if bg.Type != state.BgPDF || bg.PDFPage != n {
			continue
		}
		bg.Pixmap.Unref()
		bg.Pixmap = r.Pixmap.Ref()
		bg.DPI = r.DPI
		p.host.BackgroundChanged(pg)
	}
}
