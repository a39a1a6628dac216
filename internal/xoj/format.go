// Package xoj reads and writes journals in the gzip-compressed xoj format.
//
// A file holds a title, then an xournal element containing the pages in
// order. Each page has one background element and one or more layer
// elements; layers hold stroke elements whose text is the flat list of
// coordinates.
package xoj

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"

	"InkJournal/internal/state"
)

// Version is written into the xournal element.
const Version = "0.4.8"

const title = "Xournal document - see http://math.mit.edu/~auroux/software/xournal/"

var (
	// ErrInvalid is wrapped by every structural error in a file.
	ErrInvalid = errors.New("xoj: invalid file contents")
	// ErrMaybePDF means the file is not a journal but starts like a PDF.
	ErrMaybePDF = errors.New("xoj: file is a PDF")
)

// SyntaxError describes a structural problem at a position in the input.
type SyntaxError struct {
	Element string
	Line    int
	Column  int
	Msg     string
}

func (e *SyntaxError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("xoj: line %d:%d: %s", e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("xoj: line %d:%d: <%s>: %s", e.Line, e.Column, e.Element, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrInvalid }

// AssetError is a background file that could not be read or written. It is
// reported as a warning; the load or save carries on.
type AssetError struct {
	Path string
	Op   string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("could not %s background '%s': %v", e.Op, e.Path, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// SidePath is the side-file holding an attached background of a journal.
func SidePath(docPath, name string) string {
	return docPath + "." + name
}

func colorString(c state.Color, pal state.Palette) string {
	if name, ok := pal.Name(c); ok {
		return name
	}
	return fmt.Sprintf("#%08x", c.RGBA)
}

func parseColor(v string, pal state.Palette) (state.Color, error) {
	if c, ok := pal.Lookup(v); ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(v, "#")
	if !ok || hex == "" {
		return state.Color{}, fmt.Errorf("unknown color %q", v)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return state.Color{}, fmt.Errorf("bad color %q", v)
	}
	return state.RGBAColor(uint32(n)), nil
}

// LoadPixmap decodes an image file into a new pixmap handle.
func LoadPixmap(path string) (*state.Pixmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return state.NewPixmap(img), nil
}
