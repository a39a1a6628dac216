package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"InkJournal/internal/bgpdf"
	"InkJournal/internal/loop"
	"InkJournal/internal/psimport"
	"InkJournal/internal/state"
	"InkJournal/internal/xoj"
)

type fakeProc struct {
	job  bgpdf.Job
	done func(error)
}

func (fp *fakeProc) Terminate() error { return nil }

func (fp *fakeProc) finish(t *testing.T, w, h int) {
	t.Helper()
	f, err := os.Create(fp.job.Output())
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())
	fp.done(nil)
}

func (fp *fakeProc) fail() { fp.done(errors.New("exit status 1")) }

type fakeRasterizer struct {
	started []*fakeProc
}

func (f *fakeRasterizer) Start(job bgpdf.Job, done func(error)) (bgpdf.Process, error) {
	fp := &fakeProc{job: job, done: done}
	f.started = append(f.started, fp)
	return fp, nil
}

func (f *fakeRasterizer) last() *fakeProc { return f.started[len(f.started)-1] }

type fakeHost struct {
	errors, warnings []string
	prompted         []string
	replacement      string
	docs             int
	added, resized   int
}

func (h *fakeHost) PageAdded(*state.Page)          { h.added++ }
func (h *fakeHost) PageResized(*state.Page)        { h.resized++ }
func (h *fakeHost) BackgroundChanged(*state.Page)  {}
func (h *fakeHost) PagesChanged()                  {}
func (h *fakeHost) ShowError(msg string)           { h.errors = append(h.errors, msg) }
func (h *fakeHost) Warning(msg string)             { h.warnings = append(h.warnings, msg) }
func (h *fakeHost) DocumentChanged(*state.Journal) { h.docs++ }

func (h *fakeHost) PickReplacement(missing string) (string, bool) {
	h.prompted = append(h.prompted, missing)
	return h.replacement, h.replacement != ""
}

type fixture struct {
	loop *loop.Loop
	rast *fakeRasterizer
	host *fakeHost
	s    *Session
	dir  string
	pdf  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.AddPage()
	doc.AddPage()
	src := filepath.Join(dir, "slides.pdf")
	require.NoError(t, doc.OutputFileAndClose(src))

	f := &fixture{loop: loop.New(), rast: &fakeRasterizer{}, host: &fakeHost{}, dir: dir, pdf: src}
	f.s = New(f.loop, f.rast, f.host, Options{PrintDPI: 150})
	t.Cleanup(func() {
		f.s.Close()
		for _, fp := range f.rast.started {
			fp.fail()
		}
		f.loop.RunPending()
	})
	return f
}

// sweep renders page 1 of the background and lets page 2 fail, which
// ends the initial sweep.
func (f *fixture) sweep(t *testing.T) {
	t.Helper()
	require.Len(t, f.rast.started, 1)
	f.rast.last().finish(t, 72, 144)
	f.loop.RunPending()
	require.Len(t, f.rast.started, 2)
	f.rast.last().fail()
	f.loop.RunPending()
	require.Equal(t, bgpdf.StatusIdle, f.s.Pipeline().Status())
}

// pdfJournal saves a two-page journal whose pages show pages 1 and 2 of
// pdf under the given domain and name.
func pdfJournal(t *testing.T, path string, domain state.Domain, name string) {
	t.Helper()
	ref := state.NewRefString(name)
	j := &state.Journal{}
	for n := 1; n <= 2; n++ {
		bg := &state.Background{Type: state.BgPDF, Domain: domain, Filename: ref.Ref(), PDFPage: n}
		j.Pages = append(j.Pages, state.NewPageWithBg(bg, 595, 842))
	}
	ref.Unref()
	require.NoError(t, (&xoj.Encoder{}).Save(path, j))
}

func TestNewSession(t *testing.T) {
	f := newFixture(t)
	j := f.s.Journal()
	require.Len(t, j.Pages, 1)
	assert.Equal(t, state.BgSolid, j.Pages[0].Bg.Type)
	assert.Equal(t, 612.0, j.Pages[0].Width)
	assert.Equal(t, 0, j.Attach.Value())
	assert.Equal(t, bgpdf.StatusNotInit, f.s.Pipeline().Status())
	assert.Equal(t, "", f.s.Path())
}

func TestOpenStartsRendererOnSharedFilename(t *testing.T) {
	f := newFixture(t)
	doc := filepath.Join(f.dir, "notes.xoj")
	pdfJournal(t, doc, state.DomainAbsolute, f.pdf)

	require.NoError(t, f.s.Open(doc))
	assert.Equal(t, doc, f.s.Path())
	assert.Equal(t, 1, f.host.docs)
	p := f.s.Pipeline()
	assert.Equal(t, bgpdf.StatusRunning, p.Status())
	pages := f.s.Journal().Pages
	assert.True(t, p.Filename().Same(pages[0].Bg.Filename))
	assert.True(t, p.Filename().Same(pages[1].Bg.Filename))
	assert.Empty(t, f.host.prompted)

	// the sweep on an existing journal only fills in backgrounds
	f.sweep(t)
	assert.Len(t, pages, 2)
	assert.NotNil(t, pages[0].Bg.Pixmap)
	assert.Equal(t, 72, pages[0].Bg.DPI)
	assert.Nil(t, pages[1].Bg.Pixmap)
}

func TestOpenOffersReplacementForMissingPDF(t *testing.T) {
	f := newFixture(t)
	doc := filepath.Join(f.dir, "notes.xoj")
	gone := filepath.Join(f.dir, "moved-away.pdf")
	pdfJournal(t, doc, state.DomainAbsolute, gone)
	f.host.replacement = f.pdf

	require.NoError(t, f.s.Open(doc))
	assert.Equal(t, []string{gone}, f.host.prompted)
	pages := f.s.Journal().Pages
	assert.Equal(t, f.pdf, pages[0].Bg.Filename.S)
	assert.Equal(t, f.pdf, pages[1].Bg.Filename.S)
	assert.True(t, f.s.Pipeline().Filename().Same(pages[1].Bg.Filename))
	assert.Empty(t, f.host.errors)

	require.NoError(t, f.s.Save(doc))
	raw, err := (&xoj.Decoder{}).Open(doc)
	require.NoError(t, err)
	assert.Equal(t, f.pdf, raw.PDF.Filename.S)
}

func TestOpenWithUnavailablePDF(t *testing.T) {
	f := newFixture(t)
	doc := filepath.Join(f.dir, "notes.xoj")
	gone := filepath.Join(f.dir, "moved-away.pdf")
	pdfJournal(t, doc, state.DomainAbsolute, gone)

	require.NoError(t, f.s.Open(doc))
	assert.Len(t, f.host.prompted, 1)
	require.Len(t, f.host.errors, 1)
	assert.Contains(t, f.host.errors[0], "moved-away.pdf")
	assert.Equal(t, bgpdf.StatusNotInit, f.s.Pipeline().Status())
	assert.Len(t, f.s.Journal().Pages, 2)
}

func TestMissingAttachedPDFIsNotPrompted(t *testing.T) {
	f := newFixture(t)
	doc := filepath.Join(f.dir, "notes.xoj")
	pdfJournal(t, doc, state.DomainAttach, "bg.pdf")

	require.NoError(t, f.s.Open(doc))
	assert.Empty(t, f.host.prompted)
	require.Len(t, f.host.errors, 1)
	assert.Contains(t, f.host.errors[0], "notes.xoj.bg.pdf")
}

func TestOpenBarePDF(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Open(f.pdf))
	assert.Equal(t, "", f.s.Path())
	assert.Equal(t, state.DomainAbsolute, f.s.Pipeline().Domain())

	f.sweep(t)
	pages := f.s.Journal().Pages
	require.Len(t, pages, 1)
	assert.Equal(t, state.BgPDF, pages[0].Bg.Type)
	assert.Equal(t, 72.0, pages[0].Width)
	assert.Equal(t, 144.0, pages[0].Height)
	assert.Equal(t, f.pdf, pages[0].Bg.Filename.S)
}

func TestFailedOpenKeepsJournal(t *testing.T) {
	f := newFixture(t)
	before := f.s.Journal()
	bad := filepath.Join(f.dir, "bad.xoj")
	require.NoError(t, os.WriteFile(bad, []byte(`<xournal><page width="1"/></xournal>`), 0o644))

	err := f.s.Open(bad)
	assert.ErrorIs(t, err, xoj.ErrInvalid)
	assert.Same(t, before, f.s.Journal())
	assert.Len(t, before.Pages, 1)
	assert.NotNil(t, before.Pages[0].Bg)
	assert.Equal(t, 0, f.host.docs)
}

func TestSaveAttachedPDF(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.NewWithPDF(f.pdf, true))
	f.sweep(t)

	doc := filepath.Join(f.dir, "lecture.xoj")
	require.NoError(t, f.s.Save(doc))
	assert.Equal(t, doc, f.s.Path())
	data, err := os.ReadFile(xoj.SidePath(doc, "bg.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	assert.Empty(t, f.host.warnings)
}

func TestSaveAfterClose(t *testing.T) {
	f := newFixture(t)
	f.s.Close()
	assert.ErrorIs(t, f.s.Save(filepath.Join(f.dir, "x.xoj")), ErrNoDocument)
	assert.ErrorIs(t, f.s.LoadPixmapBackground(1, f.pdf, true), ErrNoDocument)
}

func TestLoadPixmapBackground(t *testing.T) {
	f := newFixture(t)
	img := filepath.Join(f.dir, "photo.png")
	out, err := os.Create(img)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, image.NewGray(image.Rect(0, 0, 300, 200))))
	require.NoError(t, out.Close())

	require.NoError(t, f.s.LoadPixmapBackground(1, img, true))
	pg := f.s.Journal().Pages[0]
	assert.Equal(t, state.BgPixmap, pg.Bg.Type)
	assert.Equal(t, 300.0, pg.Width)
	assert.Equal(t, 200.0, pg.Height)
	assert.Equal(t, 1, f.host.resized)

	doc := filepath.Join(f.dir, "photo.xoj")
	require.NoError(t, f.s.Save(doc))
	assert.FileExists(t, xoj.SidePath(doc, "bg_1.png"))

	require.NoError(t, f.s.LoadPixmapBackground(1, img, false))
	assert.Equal(t, state.DomainAbsolute, f.s.Journal().Pages[0].Bg.Domain)
	assert.Equal(t, img, f.s.Journal().Pages[0].Bg.Filename.S)

	assert.Error(t, f.s.LoadPixmapBackground(2, img, true))
	assert.Error(t, f.s.LoadPixmapBackground(1, filepath.Join(f.dir, "none.png"), true))
}

func TestExportWaitsForPrintRasters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.NewWithPDF(f.pdf, false))
	f.sweep(t)

	out := filepath.Join(f.dir, "print.pdf")
	var result error
	called := false
	f.s.Export(out, func(err error) { result, called = err, true })
	assert.False(t, called)
	job := f.rast.last().job
	assert.Equal(t, 1, job.Page)
	assert.Equal(t, 150, job.DPI)

	f.rast.last().finish(t, 150, 300)
	f.loop.RunPending()
	require.True(t, called)
	require.NoError(t, result)
	assert.FileExists(t, out)
	// the live page keeps its screen raster
	assert.Equal(t, 72, f.s.Journal().Pages[0].Bg.DPI)
}

func TestExportAbortedByClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.NewWithPDF(f.pdf, false))
	f.sweep(t)

	var result error
	f.s.Export(filepath.Join(f.dir, "print.pdf"), func(err error) { result = err })
	f.s.Close()
	f.rast.last().finish(t, 150, 300)
	f.loop.RunPending()
	assert.ErrorIs(t, result, ErrNoDocument)
}

func TestImportPostScript(t *testing.T) {
	f := newFixture(t)
	var stream []byte
	for _, h := range []int{100, 200} {
		img := image.NewRGBA(image.Rect(0, 0, 100, h))
		for i := range img.Pix {
			img.Pix[i] = 0xff
		}
		img.Set(0, 0, color.RGBA{A: 255})
		var buf strings.Builder
		require.NoError(t, bmp.Encode(&buf, img))
		stream = append(stream, buf.String()...)
	}
	bin := filepath.Join(f.dir, "stream.bmp")
	require.NoError(t, os.WriteFile(bin, stream, 0o644))
	gs := filepath.Join(f.dir, "gs")
	require.NoError(t, os.WriteFile(gs, []byte("#!/bin/sh\ncat '"+bin+"'\n"), 0o755))
	ps := filepath.Join(f.dir, "doc.ps")
	require.NoError(t, os.WriteFile(ps, []byte("%!PS\n"), 0o644))

	f.s = New(f.loop, f.rast, f.host, Options{Importer: psimport.Importer{Command: gs, DPI: 72}})
	var result error
	called := false
	f.s.ImportPostScript(context.Background(), 1, ps, func(err error) { result, called = err, true })
	require.Eventually(t, func() bool { return f.loop.Pending() > 0 }, 10*time.Second, 10*time.Millisecond)
	f.loop.RunPending()
	require.True(t, called)
	require.NoError(t, result)

	pages := f.s.Journal().Pages
	require.Len(t, pages, 2)
	assert.Equal(t, state.BgPixmap, pages[0].Bg.Type)
	assert.Equal(t, 200.0, pages[1].Height)
	assert.Equal(t, 1, f.host.added)
	assert.Equal(t, 1, f.host.resized)
}
