package state

import (
	"image"
	"image/color"
	"sync/atomic"
)

var handleSeq uint64

func nextHandleID() uint64 {
	return atomic.AddUint64(&handleSeq, 1)
}

// RefString is a shared, mutable filename. Backgrounds that point at the
// same external file hold the same RefString, so renaming it once renames it
// for all of them.
type RefString struct {
	id   uint64
	S    string
	refs int
}

// NewRefString returns a RefString holding s with a single reference.
// An empty s means "no name assigned yet".
func NewRefString(s string) *RefString {
	return &RefString{id: nextHandleID(), S: s, refs: 1}
}

// Ref adds a reference and returns r, so it can be used in assignments.
// A nil r stays nil.
func (r *RefString) Ref() *RefString {
	if r != nil {
		r.refs++
	}
	return r
}

// Unref drops a reference. The string is cleared when the last one goes.
func (r *RefString) Unref() {
	if r == nil || r.refs == 0 {
		return
	}
	r.refs--
	if r.refs == 0 {
		r.S = ""
	}
}

// ID identifies the underlying record; two handles are the same file
// reference exactly when their IDs match.
func (r *RefString) ID() uint64 {
	if r == nil {
		return 0
	}
	return r.id
}

// Refs returns the current reference count.
func (r *RefString) Refs() int {
	if r == nil {
		return 0
	}
	return r.refs
}

// Same reports whether r and o are the same shared record.
func (r *RefString) Same(o *RefString) bool {
	return r != nil && o != nil && r.id == o.id
}

// Pixmap is a reference-counted raster image shared between backgrounds
// and the PDF page cache.
type Pixmap struct {
	id    uint64
	Image image.Image
	refs  int
}

func NewPixmap(img image.Image) *Pixmap {
	return &Pixmap{id: nextHandleID(), Image: img, refs: 1}
}

// WhitePixmap is the 1x1 filler used when a background image can't be read.
func WhitePixmap() *Pixmap {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	return NewPixmap(img)
}

func (p *Pixmap) Ref() *Pixmap {
	if p != nil {
		p.refs++
	}
	return p
}

// Unref drops a reference and releases the image at zero.
func (p *Pixmap) Unref() {
	if p == nil || p.refs == 0 {
		return
	}
	p.refs--
	if p.refs == 0 {
		p.Image = nil
	}
}

func (p *Pixmap) ID() uint64 {
	if p == nil {
		return 0
	}
	return p.id
}

func (p *Pixmap) Refs() int {
	if p == nil {
		return 0
	}
	return p.refs
}

func (p *Pixmap) Same(o *Pixmap) bool {
	return p != nil && o != nil && p.id == o.id
}

// Size returns the pixel dimensions, or 0,0 once released.
func (p *Pixmap) Size() (int, int) {
	if p == nil || p.Image == nil {
		return 0, 0
	}
	b := p.Image.Bounds()
	return b.Dx(), b.Dy()
}
