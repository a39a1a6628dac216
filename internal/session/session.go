// Package session owns the open journal and its PDF background renderer
// and carries out the file operations on them. A Session must only be used
// from its loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"InkJournal/internal/bgpdf"
	"InkJournal/internal/export"
	"InkJournal/internal/loop"
	"InkJournal/internal/psimport"
	"InkJournal/internal/state"
	"InkJournal/internal/xoj"
)

// ErrNoDocument is returned by operations that need an open journal.
var ErrNoDocument = errors.New("session: no document open")

// Host is the user-facing side of a session.
type Host interface {
	bgpdf.Host
	// Warning reports a problem that did not stop the operation.
	Warning(msg string)
	// PickReplacement asks the user for a replacement of a PDF background
	// that could not be opened. It blocks until the user answers.
	PickReplacement(missing string) (string, bool)
	// DocumentChanged is called after a different journal was loaded.
	DocumentChanged(j *state.Journal)
}

// Options configure a session.
type Options struct {
	Template    state.PageTemplate
	PrintDPI    int
	DefaultZoom float64
	Importer    psimport.Importer
}

// Session is the open document.
type Session struct {
	loop loop.Poster
	rast bgpdf.Rasterizer
	host Host
	opts Options

	journal  *state.Journal
	pipeline *bgpdf.Pipeline
	path     string
}

// New starts a session with a fresh journal.
func New(l loop.Poster, r bgpdf.Rasterizer, h Host, opts Options) *Session {
	if opts.Template.Width <= 0 || opts.Template.Height <= 0 {
		opts.Template = state.DefaultTemplate
	}
	if opts.PrintDPI <= 0 {
		opts.PrintDPI = bgpdf.DefaultPrintDPI
	}
	if opts.DefaultZoom <= 0 {
		opts.DefaultZoom = 1
	}
	s := &Session{loop: l, rast: r, host: h, opts: opts}
	s.journal = state.NewJournal(opts.Template)
	s.pipeline = s.newPipeline()
	return s
}

func (s *Session) newPipeline() *bgpdf.Pipeline {
	p := bgpdf.New(s.loop, s.rast, s.host)
	p.PrintDPI = s.opts.PrintDPI
	p.DefaultZoom = s.opts.DefaultZoom
	return p
}

// Journal is the open journal, nil after Close.
func (s *Session) Journal() *state.Journal { return s.journal }

// Pipeline renders the PDF background of the open journal.
func (s *Session) Pipeline() *bgpdf.Pipeline { return s.pipeline }

// Path is where the journal was loaded from or last saved to, empty for a
// journal that was never saved.
func (s *Session) Path() string { return s.path }

// Close shuts the renderer down and discards the journal. A renderer that
// is still busy finishes tearing down on its own.
func (s *Session) Close() {
	s.pipeline.Shutdown()
	s.pipeline = s.newPipeline()
	if s.journal != nil {
		s.journal.Delete()
		s.journal = nil
	}
	s.path = ""
}

// NewJournal replaces the open journal with an empty one.
func (s *Session) NewJournal() {
	s.Close()
	s.journal = state.NewJournal(s.opts.Template)
	log.Printf("[SESSION] new journal")
	s.host.DocumentChanged(s.journal)
}

// NewWithPDF starts a new journal over a PDF file, with one page per PDF
// page as they get rendered. With attach set the PDF is saved next to the
// journal.
func (s *Session) NewWithPDF(pdfPath string, attach bool) error {
	domain := state.DomainAbsolute
	if attach {
		domain = state.DomainAttach
	}
	s.NewJournal()
	if err := s.pipeline.Init(s.journal, pdfPath, true, domain); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// Open loads the journal at path. If it cannot be read the open journal is
// left as it was; a plain PDF file is opened as a new journal over it.
func (s *Session) Open(path string) error {
	dec := &xoj.Decoder{OnWarning: func(err error) { s.host.Warning(err.Error()) }}
	res, err := dec.Open(path)
	if errors.Is(err, xoj.ErrMaybePDF) {
		log.Printf("[SESSION] %s is a PDF, opening it as a background", path)
		return s.NewWithPDF(path, false)
	}
	if err != nil {
		return fmt.Errorf("session: open %s: %w", path, err)
	}

	s.Close()
	s.journal = res.Journal
	s.path = path
	if res.PDF != nil {
		s.initPDF(res.PDF)
	}
	log.Printf("[SESSION] opened %s (%d pages)", path, len(s.journal.Pages))
	s.host.DocumentChanged(s.journal)
	return nil
}

// initPDF starts rendering the PDF background of a loaded journal. When
// the file is gone the user may point at another one; the shared filename
// is then rewritten so every page follows.
func (s *Session) initPDF(bg *state.Background) {
	src := bg.Filename.S
	if bg.Domain == state.DomainAttach {
		src = xoj.SidePath(s.path, bg.Filename.S)
	}
	err := s.pipeline.Init(s.journal, src, false, bg.Domain)
	if err != nil && bg.Domain != state.DomainAttach {
		log.Printf("[SESSION] %v", err)
		if alt, ok := s.host.PickReplacement(src); ok {
			src = alt
			if err = s.pipeline.Init(s.journal, src, false, bg.Domain); err == nil {
				bg.Filename.S = src
			}
		}
	}
	if err != nil {
		log.Printf("[SESSION] %v", err)
		s.host.ShowError(fmt.Sprintf("Could not open background '%s'.", src))
		return
	}
	s.pipeline.ShareFilename(bg.Filename)
}

// Save writes the journal to path. Attached backgrounds that cannot be
// written are reported as warnings.
func (s *Session) Save(path string) error {
	if s.journal == nil {
		return ErrNoDocument
	}
	enc := &xoj.Encoder{OnWarning: func(err error) { s.host.Warning(err.Error()) }}
	if cp, ok := s.pipeline.SourceCopy(); ok {
		enc.PDFSource = cp
	}
	if err := enc.Save(path, s.journal); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.path = path
	return nil
}

// LoadPixmapBackground puts the image at imgPath behind page n and sizes
// the page to it. With attach set the image is saved next to the journal.
func (s *Session) LoadPixmapBackground(n int, imgPath string, attach bool) error {
	pg, err := s.page(n)
	if err != nil {
		return err
	}
	pix, err := xoj.LoadPixmap(imgPath)
	if err != nil {
		return fmt.Errorf("session: load background: %w", err)
	}
	bg := &state.Background{Type: state.BgPixmap, Pixmap: pix, DPI: 72}
	if attach {
		bg.Domain = state.DomainAttach
		bg.Filename = state.NewRefString("")
	} else {
		bg.Domain = state.DomainAbsolute
		bg.Filename = state.NewRefString(imgPath)
	}
	w, h := pix.Size()
	s.setBackground(pg, bg, float64(w), float64(h))
	return nil
}

// ImportPostScript renders psPath through Ghostscript off the loop and
// then lays its pages over the journal starting at page n, adding pages
// past the end. done runs on the loop.
func (s *Session) ImportPostScript(ctx context.Context, n int, psPath string, done func(error)) {
	if _, err := s.page(n); err != nil {
		done(err)
		return
	}
	j := s.journal
	im := s.opts.Importer
	go func() {
		pages, err := im.Import(ctx, psPath)
		s.loop.Post(func() {
			if err == nil && s.journal != j {
				err = ErrNoDocument
			}
			if err != nil {
				for _, pg := range pages {
					pg.Bg.Release()
				}
				done(err)
				return
			}
			for i, np := range pages {
				k := n - 1 + i
				if k < len(j.Pages) {
					s.setBackground(j.Pages[k], np.Bg, np.Width, np.Height)
					continue
				}
				j.Pages = append(j.Pages, np)
				s.host.PageAdded(np)
			}
			s.host.PagesChanged()
			done(nil)
		})
	}()
}

func (s *Session) page(n int) (*state.Page, error) {
	if s.journal == nil {
		return nil, ErrNoDocument
	}
	if n < 1 || n > len(s.journal.Pages) {
		return nil, fmt.Errorf("session: no page %d", n)
	}
	return s.journal.Pages[n-1], nil
}

func (s *Session) setBackground(pg *state.Page, bg *state.Background, w, h float64) {
	pg.Bg.Release()
	pg.Bg = bg
	pg.Width, pg.Height = w, h
	s.host.PageResized(pg)
}

// ShowPage asks for page n to be rendered for display at zoom, if its
// background is a PDF page.
func (s *Session) ShowPage(n int, zoom float64) {
	pg, err := s.page(n)
	if err != nil || pg.Bg.Type != state.BgPDF {
		return
	}
	s.pipeline.Request(pg.Bg.PDFPage, bgpdf.DPIForZoom(zoom), false)
}

// Export prints the journal to a PDF at outPath. PDF backgrounds are first
// rendered at print resolution; done runs on the loop once the file is
// written or the export failed.
func (s *Session) Export(outPath string, done func(error)) {
	j := s.journal
	if j == nil {
		done(ErrNoDocument)
		return
	}
	p := s.pipeline
	seen := map[int]bool{}
	for _, pg := range j.Pages {
		if pg.Bg.Type == state.BgPDF && !seen[pg.Bg.PDFPage] {
			seen[pg.Bg.PDFPage] = true
			p.Request(pg.Bg.PDFPage, p.PrintDPI, true)
		}
	}
	p.WhenIdle(func() {
		if s.journal != j {
			done(ErrNoDocument)
			return
		}
		done(export.WritePDF(outPath, j, func(n int) (*state.Pixmap, bool) {
			r, ok := p.Raster(n)
			if !ok || r.DPI != p.PrintDPI {
				return nil, false
			}
			return r.Pixmap, true
		}))
	})
}
