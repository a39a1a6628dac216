package xoj

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"InkJournal/internal/state"
)

// Result is a successfully read journal.
type Result struct {
	Journal *state.Journal
	// PDF is the first PDF background in the file, nil if there is none.
	// Every other PDF background shares its filename.
	PDF *state.Background
}

// Decoder reads journals.
type Decoder struct {
	// OnWarning receives background images that could not be opened; those
	// backgrounds are replaced by a white pixel.
	OnWarning func(error)
}

func (d *Decoder) warn(err error) {
	log.Printf("[XOJ] %v", err)
	if d.OnWarning != nil {
		d.OnWarning(err)
	}
}

// Open reads the journal at path, compressed or not. A file that turns out
// to be a PDF yields ErrMaybePDF.
func (d *Decoder) Open(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("xoj: open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, _ := br.Peek(2); bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xoj: open: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	content := bufio.NewReader(r)
	if head, _ := content.Peek(4); string(head) == "%PDF" {
		return nil, ErrMaybePDF
	}
	return d.Decode(content, path)
}

// Decode parses an uncompressed journal. docPath locates attached
// background files. On error every handle acquired so far is released and
// no partial journal is returned.
func (d *Decoder) Decode(r io.Reader, docPath string) (*Result, error) {
	p := &parser{
		d:       d,
		docPath: docPath,
		dec:     xml.NewDecoder(r),
		j:       &state.Journal{},
	}
	if err := p.run(); err != nil {
		p.j.Delete()
		return nil, err
	}
	log.Printf("[XOJ] read %d pages from %s", len(p.j.Pages), docPath)
	return &Result{Journal: p.j, PDF: p.pdfBg}, nil
}

// parser holds the cursors of one decode.
type parser struct {
	d       *Decoder
	docPath string
	dec     *xml.Decoder

	j      *state.Journal
	page   *state.Page
	layer  *state.Layer
	stroke *state.Stroke
	pdfBg  *state.Background

	open   []string
	text   []byte
	coords []float64
}

func (p *parser) fail(elem, format string, args ...any) error {
	line, col := p.dec.InputPos()
	return &SyntaxError{Element: elem, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) run() error {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.fail("", "%v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.open = append(p.open, t.Name.Local)
			err = p.start(t)
		case xml.EndElement:
			p.open = p.open[:len(p.open)-1]
			err = p.end(t)
		case xml.CharData:
			if p.stroke != nil && len(p.open) > 0 && p.open[len(p.open)-1] == "stroke" {
				p.text = append(p.text, t...)
			}
		}
		if err != nil {
			return err
		}
	}
	if len(p.j.Pages) == 0 {
		return p.fail("", "no pages")
	}
	return nil
}

// attrMap collects the attributes of an element, refusing duplicates and
// names outside allowed.
func (p *parser) attrMap(t xml.StartElement, allowed ...string) (map[string]string, error) {
	m := make(map[string]string, len(t.Attr))
	for _, a := range t.Attr {
		name := a.Name.Local
		if a.Name.Space != "" {
			name = a.Name.Space + ":" + name
		}
		found := false
		for _, ok := range allowed {
			if name == ok {
				found = true
				break
			}
		}
		if !found {
			return nil, p.fail(t.Name.Local, "unexpected attribute %q", name)
		}
		if _, dup := m[name]; dup {
			return nil, p.fail(t.Name.Local, "duplicate attribute %q", name)
		}
		m[name] = a.Value
	}
	return m, nil
}

func parseReal(v string) (float64, bool) {
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

func (p *parser) start(t xml.StartElement) error {
	name := t.Name.Local
	if t.Name.Space != "" {
		return nil
	}
	switch name {
	case "title", "xournal":
		if p.page != nil {
			return p.fail(name, "inside a page")
		}
	case "page":
		return p.startPage(t)
	case "background":
		return p.startBackground(t)
	case "layer":
		if p.page == nil || p.layer != nil {
			return p.fail(name, "misplaced layer")
		}
		p.layer = &state.Layer{}
		p.page.Layers = append(p.page.Layers, p.layer)
	case "stroke":
		return p.startStroke(t)
	}
	return nil
}

func (p *parser) startPage(t xml.StartElement) error {
	if p.page != nil {
		return p.fail("page", "nested page")
	}
	attrs, err := p.attrMap(t, "width", "height")
	if err != nil {
		return err
	}
	pg := &state.Page{Bg: &state.Background{Type: state.BgUnset}}
	p.page = pg
	p.j.Pages = append(p.j.Pages, pg)

	var ok bool
	if pg.Width, ok = parseReal(attrs["width"]); !ok {
		return p.fail("page", "bad or missing width")
	}
	if pg.Height, ok = parseReal(attrs["height"]); !ok {
		return p.fail("page", "bad or missing height")
	}
	return nil
}

const (
	hasType = 1 << iota
	hasColor
	hasStyle
	hasDomain
	hasFilename
	hasPageno
)

var requiredAttrs = map[state.BgType]int{
	state.BgSolid:  hasType | hasColor | hasStyle,
	state.BgPixmap: hasType | hasDomain | hasFilename,
	state.BgPDF:    hasType | hasDomain | hasFilename | hasPageno,
}

func (p *parser) startBackground(t xml.StartElement) error {
	if p.page == nil || p.layer != nil || p.page.Bg.Type != state.BgUnset {
		return p.fail("background", "misplaced background")
	}
	attrs, err := p.attrMap(t, "type", "color", "style", "domain", "filename", "pageno")
	if err != nil {
		return err
	}
	bg := p.page.Bg
	typ, ok := state.ParseBgType(attrs["type"])
	if !ok {
		return p.fail("background", "bad or missing type")
	}
	bg.Type = typ
	has := hasType
	if typ == state.BgPDF {
		if p.pdfBg == nil {
			p.pdfBg = bg
		} else {
			has |= hasDomain | hasFilename
			bg.Filename = p.pdfBg.Filename.Ref()
			bg.Domain = p.pdfBg.Domain
		}
	}

	if v, ok := attrs["color"]; ok {
		if typ != state.BgSolid {
			return p.fail("background", "color on a %s background", typ)
		}
		if bg.Color, err = parseColor(v, state.PaperColors); err != nil {
			return p.fail("background", "%v", err)
		}
		has |= hasColor
	}
	if v, ok := attrs["style"]; ok {
		if typ != state.BgSolid {
			return p.fail("background", "style on a %s background", typ)
		}
		if bg.Ruling, ok = state.ParseRuling(v); !ok {
			return p.fail("background", "unknown style %q", v)
		}
		has |= hasStyle
	}
	if v, ok := attrs["domain"]; ok {
		if typ == state.BgSolid || has&hasDomain != 0 {
			return p.fail("background", "unexpected domain")
		}
		if bg.Domain, ok = state.ParseDomain(v); !ok {
			return p.fail("background", "unknown domain %q", v)
		}
		has |= hasDomain
	}
	if v, ok := attrs["filename"]; ok {
		if typ == state.BgSolid || has&hasFilename != 0 || has&hasDomain == 0 {
			return p.fail("background", "unexpected filename")
		}
		if err := p.backgroundFile(bg, v); err != nil {
			return err
		}
		has |= hasFilename
	}
	if v, ok := attrs["pageno"]; ok {
		if typ != state.BgPDF {
			return p.fail("background", "pageno on a %s background", typ)
		}
		x, ok := parseReal(v)
		if !ok || x < 1 || x > math.MaxInt32 {
			return p.fail("background", "bad pageno %q", v)
		}
		bg.PDFPage = int(x)
		has |= hasPageno
	}

	if has != requiredAttrs[typ] {
		return p.fail("background", "incomplete %s background", typ)
	}
	return nil
}

// backgroundFile resolves the filename attribute of a pixmap or PDF
// background.
func (p *parser) backgroundFile(bg *state.Background, v string) error {
	if bg.Domain == state.DomainClone {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 || i >= len(p.j.Pages)-1 {
			return p.fail("background", "bad clone index %q", v)
		}
		src := p.j.Pages[i].Bg
		if src.Type != bg.Type {
			return p.fail("background", "clone of a %s background", src.Type)
		}
		bg.Filename = src.Filename.Ref()
		bg.Pixmap = src.Pixmap.Ref()
		bg.Domain = src.Domain
		return nil
	}

	bg.Filename = state.NewRefString(v)
	if bg.Type != state.BgPixmap {
		return nil
	}
	path := v
	if bg.Domain == state.DomainAttach {
		path = SidePath(p.docPath, v)
		if n, ok := state.ParseAttachName(v); ok {
			p.j.Attach.Update(n)
		}
	}
	pix, err := LoadPixmap(path)
	if err != nil {
		p.d.warn(&AssetError{Path: path, Op: "open", Err: err})
		pix = state.WhitePixmap()
	}
	bg.Pixmap = pix
	return nil
}

func (p *parser) startStroke(t xml.StartElement) error {
	if p.layer == nil || p.stroke != nil {
		return p.fail("stroke", "misplaced stroke")
	}
	attrs, err := p.attrMap(t, "width", "color", "tool")
	if err != nil {
		return err
	}
	s := &state.Stroke{}
	p.layer.Items = append(p.layer.Items, s)
	p.stroke = s
	p.text = p.text[:0]

	var ok bool
	if s.Brush.Thickness, ok = parseReal(attrs["width"]); !ok {
		return p.fail("stroke", "bad or missing width")
	}
	v, ok := attrs["color"]
	if !ok {
		return p.fail("stroke", "missing color")
	}
	if s.Brush.Color, err = parseColor(v, state.PenColors); err != nil {
		return p.fail("stroke", "%v", err)
	}
	if s.Brush.Tool, ok = state.ParseTool(attrs["tool"]); !ok {
		return p.fail("stroke", "bad or missing tool")
	}
	if s.Brush.Tool == state.ToolHighlighter {
		s.Brush.Color = s.Brush.Color.WithAlpha(state.HighlighterAlpha)
	}
	return nil
}

func (p *parser) end(t xml.EndElement) error {
	name := t.Name.Local
	if t.Name.Space != "" {
		return nil
	}
	switch name {
	case "page":
		if p.page == nil || p.layer != nil {
			return p.fail(name, "unbalanced page")
		}
		if len(p.page.Layers) == 0 {
			return p.fail(name, "page without layers")
		}
		if p.page.Bg.Type == state.BgUnset {
			return p.fail(name, "page without background")
		}
		p.page = nil
	case "layer":
		if p.layer == nil || p.stroke != nil {
			return p.fail(name, "unbalanced layer")
		}
		p.layer = nil
	case "stroke":
		if p.stroke == nil {
			return p.fail(name, "unbalanced stroke")
		}
		n := p.scanCoords()
		if n < 4 || n%2 != 0 {
			return p.fail(name, "%d coordinates", n)
		}
		p.stroke.Coords = append([]float64(nil), p.coords[:n]...)
		p.stroke.UpdateBBox()
		p.stroke = nil
	}
	return nil
}

// scanCoords reads numbers from the accumulated stroke text into the
// scratch buffer, stopping at the first token that is not a number.
func (p *parser) scanCoords() int {
	p.coords = p.coords[:0]
	for _, field := range strings.Fields(string(p.text)) {
		x, ok := parseReal(field)
		if !ok {
			break
		}
		p.coords = append(p.coords, x)
	}
	return len(p.coords)
}
