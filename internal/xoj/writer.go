package xoj

import (
	"bufio"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"InkJournal/internal/state"
)

// Encoder writes journals.
type Encoder struct {
	// PDFSource is the local copy of the PDF background. An attached PDF
	// background is written out from it.
	PDFSource string
	// OnWarning receives background files that could not be written.
	OnWarning func(error)
}

func (e *Encoder) warn(err error) {
	log.Printf("[XOJ] %v", err)
	if e.OnWarning != nil {
		e.OnWarning(err)
	}
}

// Save writes j to path. The file is written under a temporary name and
// renamed into place, so a failed save leaves any previous file alone.
// Attached backgrounds are written to side-files next to path.
func (e *Encoder) Save(path string, j *state.Journal) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("xoj: save: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	if err := e.Encode(zw, path, j); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("xoj: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("xoj: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("xoj: save: %w", err)
	}
	ok = true
	log.Printf("[XOJ] saved %d pages to %s", len(j.Pages), path)
	return nil
}

type errWriter struct {
	w   *bufio.Writer
	err error
}

func (w *errWriter) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *errWriter) puts(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(s)
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Encode writes j uncompressed to out. docPath names the journal and
// determines where attached backgrounds go.
func (e *Encoder) Encode(out io.Writer, docPath string, j *state.Journal) error {
	j.AssignAttachNames()

	w := &errWriter{w: bufio.NewWriter(out)}
	w.printf("<?xml version=\"1.0\" standalone=\"no\"?>\n<title>%s</title>\n<xournal version=\"%s\">\n",
		escape(title), Version)
	for i, pg := range j.Pages {
		w.printf("<page width=\"%.2f\" height=\"%.2f\">\n", pg.Width, pg.Height)
		e.background(w, docPath, j.Pages[:i], pg.Bg)
		for _, layer := range pg.Layers {
			w.puts("<layer>\n")
			for _, item := range layer.Items {
				if s, ok := item.(*state.Stroke); ok {
					stroke(w, s)
				}
			}
			w.puts("</layer>\n")
		}
		w.puts("</page>\n")
		if w.err == nil {
			w.err = w.w.Flush()
		}
		if w.err != nil {
			return fmt.Errorf("xoj: write page %d: %w", i+1, w.err)
		}
	}
	w.puts("</xournal>\n")
	if w.err == nil {
		w.err = w.w.Flush()
	}
	if w.err != nil {
		return fmt.Errorf("xoj: write: %w", w.err)
	}
	return nil
}

func (e *Encoder) background(w *errWriter, docPath string, earlier []*state.Page, bg *state.Background) {
	w.printf("<background type=\"%s\" ", bg.Type)
	switch bg.Type {
	case state.BgSolid:
		w.printf("color=\"%s\" style=\"%s\" ", colorString(bg.Color, state.PaperColors), bg.Ruling)

	case state.BgPixmap:
		if i := pixmapClone(earlier, bg); i >= 0 {
			w.printf("domain=\"clone\" filename=\"%d\" ", i)
			break
		}
		if bg.Domain == state.DomainAttach {
			side := SidePath(docPath, bg.Filename.S)
			if err := writePNG(side, bg.Pixmap); err != nil {
				e.warn(&AssetError{Path: side, Op: "write", Err: err})
			}
		}
		w.printf("domain=\"%s\" filename=\"%s\" ", bg.Domain, escape(bg.Filename.S))

	case state.BgPDF:
		if !hasPDF(earlier) {
			if bg.Domain == state.DomainAttach {
				side := SidePath(docPath, bg.Filename.S)
				if err := copyFile(side, e.PDFSource); err != nil {
					e.warn(&AssetError{Path: side, Op: "write", Err: err})
				}
			}
			w.printf("domain=\"%s\" filename=\"%s\" ", bg.Domain, escape(bg.Filename.S))
		}
		w.printf("pageno=\"%d\" ", bg.PDFPage)
	}
	w.puts("/>\n")
}

// pixmapClone finds an earlier page showing the very same image under the
// very same filename.
func pixmapClone(earlier []*state.Page, bg *state.Background) int {
	for i, pg := range earlier {
		o := pg.Bg
		if o.Type == state.BgPixmap && o.Pixmap.Same(bg.Pixmap) && o.Filename.Same(bg.Filename) {
			return i
		}
	}
	return -1
}

// hasPDF reports whether any earlier page has a PDF background. A journal
// has a single PDF source, so only its first use carries the filename.
func hasPDF(earlier []*state.Page) bool {
	for _, pg := range earlier {
		if pg.Bg.Type == state.BgPDF {
			return true
		}
	}
	return false
}

func stroke(w *errWriter, s *state.Stroke) {
	w.printf("<stroke tool=\"%s\" color=\"%s\" width=\"%.2f\">\n",
		s.Brush.Tool, colorString(s.Brush.Color, state.PenColors), s.Brush.Thickness)
	for _, c := range s.Coords {
		w.printf("%.2f ", c)
	}
	w.puts("\n</stroke>\n")
}

func writePNG(path string, pix *state.Pixmap) error {
	if pix == nil || pix.Image == nil {
		return errors.New("no image")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, pix.Image); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(dst, src string) error {
	if src == "" {
		return errors.New("no PDF loaded")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
