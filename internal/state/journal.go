package state

import "log"

// BgType tells which variant a Background is.
type BgType int

const (
	BgUnset BgType = iota - 1
	BgSolid
	BgPixmap
	BgPDF
)

var bgTypeNames = [...]string{"solid", "pixmap", "pdf"}

func (t BgType) String() string {
	if t < 0 || int(t) >= len(bgTypeNames) {
		return "none"
	}
	return bgTypeNames[t]
}

func ParseBgType(s string) (BgType, bool) {
	for i, name := range bgTypeNames {
		if s == name {
			return BgType(i), true
		}
	}
	return BgUnset, false
}

// Ruling is the line pattern of a solid background.
type Ruling int

const (
	RulingPlain Ruling = iota
	RulingLined
	RulingRuled
	RulingGraph
)

var rulingNames = [...]string{"plain", "lined", "ruled", "graph"}

func (r Ruling) String() string {
	if r < 0 || int(r) >= len(rulingNames) {
		return ""
	}
	return rulingNames[r]
}

func ParseRuling(s string) (Ruling, bool) {
	for i, name := range rulingNames {
		if s == name {
			return Ruling(i), true
		}
	}
	return 0, false
}

// Domain says where the bytes of a file background live.
type Domain int

const (
	// DomainAbsolute: an external path.
	DomainAbsolute Domain = iota
	// DomainAttach: a side-file next to the journal.
	DomainAttach
	// DomainClone: the same asset as an earlier page.
	DomainClone
)

var domainNames = [...]string{"absolute", "attach", "clone"}

func (d Domain) String() string {
	if d < 0 || int(d) >= len(domainNames) {
		return ""
	}
	return domainNames[d]
}

func ParseDomain(s string) (Domain, bool) {
	for i, name := range domainNames {
		if s == name {
			return Domain(i), true
		}
	}
	return 0, false
}

// Background is the paper under the layers of a page.
//
// Solid backgrounds use Color and Ruling. Pixmap and PDF backgrounds use
// Domain, Filename and Pixmap; PDF backgrounds also carry the 1-based page
// of the source document and the dpi their current raster was made at.
// Filename and Pixmap are shared handles and must be released with Release.
type Background struct {
	Type     BgType
	Color    Color
	Ruling   Ruling
	Domain   Domain
	Filename *RefString
	Pixmap   *Pixmap
	PDFPage  int
	DPI      int
}

// Release drops the shared handles held by bg.
func (bg *Background) Release() {
	if bg == nil {
		return
	}
	bg.Filename.Unref()
	bg.Filename = nil
	bg.Pixmap.Unref()
	bg.Pixmap = nil
}

// Page is one sheet of the journal.
type Page struct {
	Width, Height float64
	Layers        []*Layer
	Bg            *Background
}

// NewPageWithBg creates a page of the given size with one empty layer.
// The page takes ownership of bg.
func NewPageWithBg(bg *Background, width, height float64) *Page {
	return &Page{
		Width:  width,
		Height: height,
		Layers: []*Layer{{}},
		Bg:     bg,
	}
}

// NumStrokes counts the strokes on all layers.
func (p *Page) NumStrokes() int {
	n := 0
	for _, l := range p.Layers {
		n += len(l.Strokes())
	}
	return n
}

// PageTemplate describes the page a new journal starts with.
type PageTemplate struct {
	Width, Height float64
	Color         Color
	Ruling        Ruling
}

// DefaultTemplate is US letter, white, lined.
var DefaultTemplate = PageTemplate{
	Width:  612,
	Height: 792,
	Color:  Color{Index: 0, RGBA: PaperColors[0].RGBA},
	Ruling: RulingLined,
}

// NewPage creates a page from the template.
func (t PageTemplate) NewPage() *Page {
	bg := &Background{Type: BgSolid, Color: t.Color, Ruling: t.Ruling}
	return NewPageWithBg(bg, t.Width, t.Height)
}

// Journal is the whole document.
type Journal struct {
	Pages  []*Page
	Attach AttachClock
}

// NewJournal creates a journal holding a single page.
func NewJournal(t PageTemplate) *Journal {
	return &Journal{Pages: []*Page{t.NewPage()}}
}

// AssignAttachNames gives every attached background that has no side-file
// name yet a fresh one.
func (j *Journal) AssignAttachNames() {
	for _, pg := range j.Pages {
		bg := pg.Bg
		if bg.Type == BgSolid || bg.Domain != DomainAttach {
			continue
		}
		if bg.Filename == nil {
			bg.Filename = NewRefString("")
		}
		if bg.Filename.S != "" {
			continue
		}
		bg.Filename.S = AttachName(j.Attach.Tick())
		log.Printf("[STATE] assigned attach name %s", bg.Filename.S)
	}
}

// Delete releases every background handle. The journal must not be used
// afterwards.
func (j *Journal) Delete() {
	for _, pg := range j.Pages {
		pg.Bg.Release()
	}
	j.Pages = nil
}
