// Package bgpdf renders the pages of a PDF background on demand.
//
// A Pipeline keeps a queue of render requests and runs at most one external
// rasterizer at a time. Rendered pages are cached and pushed into the
// journal as they arrive. All methods must be called on the loop the
// pipeline was created with; process completion is delivered through that
// same loop, so it never interleaves with a method call.
package bgpdf

import (
	"errors"
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"InkJournal/internal/loop"
	"InkJournal/internal/state"
)

var (
	ErrNotPDF = errors.New("bgpdf: not a PDF file")
	ErrBusy   = errors.New("bgpdf: pipeline already initialized")
)

// AllPages requests the initial sweep: page 1, then every following page
// until one fails to render.
const AllPages = 0

// DefaultPrintDPI is used for print requests when PrintDPI is unset.
const DefaultPrintDPI = 150

// DPIForZoom converts a display zoom factor to a raster resolution.
func DPIForZoom(zoom float64) int {
	return int(math.Floor(72*zoom + 0.5))
}

// Status is the lifecycle state of a pipeline.
type Status int

const (
	StatusNotInit Status = iota
	StatusIdle
	StatusRunning
	StatusAborting
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusNotInit:
		return "not-initialized"
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusAborting:
		return "aborting"
	case StatusShutdown:
		return "shutting-down"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Request asks for one page at one resolution.
type Request struct {
	ID       uuid.UUID
	Page     int
	DPI      int
	Printing bool
	Initial  bool

	cancelled bool
}

func (r *Request) tag() string {
	return r.ID.String()[:8]
}

// Raster is a cached page image and the resolution it was made at.
type Raster struct {
	Pixmap *state.Pixmap
	DPI    int
}

// Host receives the journal changes the pipeline makes.
type Host interface {
	// PageAdded is called after a page was appended from a raster.
	PageAdded(pg *state.Page)
	// PageResized is called after an existing page took a raster as its
	// background and changed size.
	PageResized(pg *state.Page)
	// BackgroundChanged is called after a page's PDF raster was replaced.
	BackgroundChanged(pg *state.Page)
	// PagesChanged is called when the page count or navigation state moved.
	PagesChanged()
	// ShowError reports a problem to the user.
	ShowError(msg string)
}

type run struct {
	req  *Request
	job  Job
	proc Process
}

// Pipeline is the background renderer for one PDF source.
type Pipeline struct {
	// PrintDPI is the resolution of print requests.
	PrintDPI int
	// DefaultZoom sets the resolution of the initial sweep.
	DefaultZoom float64

	loop loop.Poster
	rast Rasterizer
	host Host

	status      Status
	journal     *state.Journal
	requests    []*Request
	cache       []Raster
	running     *run
	tmpDir      string
	copyPath    string
	filename    *state.RefString
	domain      state.Domain
	createPages bool
	hasFailed   bool
	idle        []func()
}

// New creates a pipeline in the NotInit state.
func New(l loop.Poster, r Rasterizer, h Host) *Pipeline {
	return &Pipeline{
		PrintDPI:    DefaultPrintDPI,
		DefaultZoom: 1,
		loop:        l,
		rast:        r,
		host:        h,
	}
}

// Init copies pdfPath into a private temporary directory, starts the
// initial sweep and attaches the pipeline to j. With createPages set the
// sweep adds a page to j for every page of the PDF.
func (p *Pipeline) Init(j *state.Journal, pdfPath string, createPages bool, domain state.Domain) error {
	if p.status != StatusNotInit {
		return ErrBusy
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("bgpdf: read source: %w", err)
	}
	if !IsPDF(data) {
		return fmt.Errorf("%w: %s", ErrNotPDF, pdfPath)
	}
	dir, err := os.MkdirTemp("", "inkjournal-bgpdf-")
	if err != nil {
		return fmt.Errorf("bgpdf: %w", err)
	}
	cp := filepath.Join(dir, "bg.pdf")
	if err := os.WriteFile(cp, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("bgpdf: copy source: %w", err)
	}

	name := pdfPath
	if domain == state.DomainAttach {
		name = "bg.pdf"
	}
	p.tmpDir = dir
	p.copyPath = cp
	p.journal = j
	p.filename = state.NewRefString(name)
	p.domain = domain
	p.cache = nil
	p.requests = nil
	p.running = nil
	p.createPages = createPages
	p.hasFailed = false
	p.status = StatusIdle
	log.Printf("[BGPDF] initialized from %s (%d bytes) in %s", pdfPath, len(data), dir)

	p.Request(AllPages, DPIForZoom(p.DefaultZoom), false)
	return nil
}

// Status returns the lifecycle state.
func (p *Pipeline) Status() Status { return p.status }

// Filename is the shared filename backgrounds created by the pipeline use.
func (p *Pipeline) Filename() *state.RefString { return p.filename }

// Domain is the file domain the pipeline was initialized with.
func (p *Pipeline) Domain() state.Domain { return p.domain }

// ShareFilename makes the pipeline use ref, a filename already held by the
// journal, instead of its own.
func (p *Pipeline) ShareFilename(ref *state.RefString) {
	if p.status == StatusNotInit || p.status == StatusShutdown {
		return
	}
	p.filename.Unref()
	p.filename = ref.Ref()
}

// SourceCopy returns the path of the private copy of the source PDF.
func (p *Pipeline) SourceCopy() (string, bool) {
	if p.status == StatusNotInit || p.copyPath == "" {
		return "", false
	}
	return p.copyPath, true
}

// Raster returns the cached image of a page, if one has been rendered.
func (p *Pipeline) Raster(page int) (Raster, bool) {
	if page < 1 || page > len(p.cache) || p.cache[page-1].Pixmap == nil {
		return Raster{}, false
	}
	return p.cache[page-1], true
}

// NumRendered is the size of the page cache, placeholders included.
func (p *Pipeline) NumRendered() int { return len(p.cache) }

// Queue returns a snapshot of the pending requests, in-flight one first.
func (p *Pipeline) Queue() []Request {
	res := make([]Request, len(p.requests))
	for i, r := range p.requests {
		res[i] = *r
	}
	return res
}

// Busy reports whether a rasterizer process is outstanding.
func (p *Pipeline) Busy() bool { return p.running != nil }

// WhenIdle runs fn once the queue has drained, or immediately if it
// already has.
func (p *Pipeline) WhenIdle(fn func()) {
	if p.running == nil && len(p.requests) == 0 && p.status != StatusShutdown {
		fn()
		return
	}
	p.idle = append(p.idle, fn)
}

func (p *Pipeline) notifyIdle() {
	fns := p.idle
	p.idle = nil
	for _, fn := range fns {
		fn()
	}
}

// Request queues a render of page at dpi. Use AllPages for the initial
// sweep. Requests made before Init or during shutdown are dropped and nil is
// returned.
//
// A targeted request replaces any queued, not yet started request for the
// same page and the same print class. A render already in progress is left
// to finish; the new request runs after it.
func (p *Pipeline) Request(page, dpi int, printing bool) *Request {
	if p.status == StatusNotInit || p.status == StatusShutdown {
		return nil
	}
	req := &Request{ID: uuid.New(), DPI: dpi, Printing: printing}
	if page >= 1 {
		for _, other := range slices.Clone(p.requests) {
			if other.Initial || other.Page != page || other.Printing != printing {
				continue
			}
			if p.running != nil && p.running.req == other {
				continue
			}
			p.Cancel(other)
		}
		req.Page = page
	} else {
		req.Page = 1
		req.Initial = true
	}
	p.requests = append(p.requests, req)
	log.Printf("[BGPDF] queued %s: page %d at %d dpi (printing=%t initial=%t)",
		req.tag(), req.Page, req.DPI, req.Printing, req.Initial)
	if p.running == nil {
		p.dispatch()
	}
	return req
}

// Cancel withdraws a request. A queued request is removed at once. The
// in-flight request is only flagged and its process signalled; it leaves
// the queue when the process reports back, and its output is discarded.
func (p *Pipeline) Cancel(req *Request) {
	i := slices.Index(p.requests, req)
	if i < 0 {
		return
	}
	if i == 0 && p.running != nil && p.running.req == req {
		if req.cancelled {
			return
		}
		req.cancelled = true
		if p.status == StatusRunning {
			p.status = StatusAborting
		}
		log.Printf("[BGPDF] cancelling in-flight %s", req.tag())
		if err := p.running.proc.Terminate(); err != nil {
			log.Printf("[BGPDF] signal rasterizer: %v", err)
		}
		return
	}
	p.requests = slices.Delete(p.requests, i, i+1)
	log.Printf("[BGPDF] cancelled queued %s", req.tag())
}

// Shutdown releases the cache and cancels everything. Teardown finishes
// immediately when no process is running, otherwise when it reports back.
func (p *Pipeline) Shutdown() {
	if p.status == StatusNotInit || p.status == StatusShutdown {
		return
	}
	p.filename.Unref()
	p.filename = nil
	for i := range p.cache {
		p.cache[i].Pixmap.Unref()
	}
	p.cache = nil
	p.status = StatusShutdown
	for i := len(p.requests) - 1; i >= 0; i-- {
		p.Cancel(p.requests[i])
	}
	if p.running == nil {
		p.finishShutdown()
	}
}

func (p *Pipeline) finishShutdown() {
	if p.tmpDir != "" {
		if err := os.RemoveAll(p.tmpDir); err != nil {
			log.Printf("[BGPDF] remove %s: %v", p.tmpDir, err)
		}
	}
	p.tmpDir = ""
	p.copyPath = ""
	p.requests = nil
	p.journal = nil
	p.createPages = false
	p.status = StatusNotInit
	log.Printf("[BGPDF] shut down")
	p.notifyIdle()
}

func (p *Pipeline) redundant(req *Request) bool {
	if req.Initial || req.Page > len(p.cache) {
		return false
	}
	c := p.cache[req.Page-1]
	return c.Pixmap != nil && c.DPI == req.DPI
}

func (p *Pipeline) outputRoot(page int) string {
	return filepath.Join(p.tmpDir, fmt.Sprintf("p-%06d", page))
}

// dispatch starts the head request, dropping heads that are redundant or
// can't be started.
func (p *Pipeline) dispatch() {
	for len(p.requests) > 0 {
		req := p.requests[0]
		if p.redundant(req) {
			log.Printf("[BGPDF] %s is redundant, dropped", req.tag())
			p.requests = p.requests[1:]
			continue
		}
		r := &run{
			req: req,
			job: Job{PDF: p.copyPath, OutputRoot: p.outputRoot(req.Page), Page: req.Page, DPI: req.DPI},
		}
		proc, err := p.rast.Start(r.job, func(err error) {
			p.loop.Post(func() { p.childExited(r, err) })
		})
		if err != nil {
			log.Printf("[BGPDF] %s: %v", req.tag(), err)
			p.requests = p.requests[1:]
			if !p.hasFailed {
				p.host.ShowError(fmt.Sprintf("Unable to start PDF loader: %v", err))
			}
			p.hasFailed = true
			continue
		}
		r.proc = proc
		p.running = r
		p.status = StatusRunning
		log.Printf("[BGPDF] rendering %s: page %d at %d dpi", req.tag(), req.Page, req.DPI)
		return
	}
	p.status = StatusIdle
	p.notifyIdle()
}

// childExited is the completion handler. It always runs on the loop.
func (p *Pipeline) childExited(r *run, exitErr error) {
	if p.running != r {
		return
	}
	p.running = nil
	req := r.req
	out := r.job.Output()

	var img image.Image
	if p.status == StatusAborting || p.status == StatusShutdown || req.cancelled {
		log.Printf("[BGPDF] %s aborted", req.tag())
	} else {
		var err error
		img, err = loadRaster(out)
		if err != nil {
			log.Printf("[BGPDF] %s produced no raster (exit: %v): %v", req.tag(), exitErr, err)
		}
	}
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[BGPDF] remove %s: %v", out, err)
	}

	if img != nil {
		p.store(req, img)
	} else {
		p.createPages = false
		req.Initial = false
	}

	if req.Initial {
		req.Page++
	} else if i := slices.Index(p.requests, req); i >= 0 {
		p.requests = slices.Delete(p.requests, i, i+1)
	}

	if p.status == StatusShutdown {
		p.finishShutdown()
		return
	}
	p.status = StatusIdle
	p.dispatch()
}

func (p *Pipeline) store(req *Request, img image.Image) {
	for len(p.cache) < req.Page {
		p.cache = append(p.cache, Raster{})
	}
	slot := &p.cache[req.Page-1]
	slot.Pixmap.Unref()
	slot.Pixmap = state.NewPixmap(img)
	slot.DPI = req.DPI
	log.Printf("[BGPDF] %s done: page %d at %d dpi", req.tag(), req.Page, req.DPI)

	if p.journal == nil {
		return
	}
	if req.Initial && p.createPages {
		p.createPageWithBg(req.Page, *slot)
	} else if !req.Printing {
		p.updateBg(req.Page, *slot)
	}
}
