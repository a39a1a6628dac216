// Package psimport turns a PostScript or PDF file into page backgrounds in
// one go, by having Ghostscript print every page as a BMP image to a pipe.
package psimport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/image/bmp"

	"InkJournal/internal/state"
)

// DefaultDPI is the import resolution when none is configured.
const DefaultDPI = 100

// ErrNotPostScript means the file starts neither like PostScript nor PDF.
var ErrNotPostScript = errors.New("psimport: not a PostScript or PDF file")

const headerSize = 54

// Importer runs Ghostscript.
type Importer struct {
	// Command is the Ghostscript executable, "gs" if empty.
	Command string
	// DPI is the resolution pages are rendered at.
	DPI int
}

func (im Importer) command() string {
	if im.Command == "" {
		return "gs"
	}
	return im.Command
}

func (im Importer) dpi() int {
	if im.DPI <= 0 {
		return DefaultDPI
	}
	return im.DPI
}

// Sniff reports whether path looks like PostScript or PDF.
func Sniff(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil
	}
	return bytes.Equal(head, []byte("%!PS")) || bytes.Equal(head, []byte("%PDF")), nil
}

// Import renders every page of path and returns one page per image, sized
// so the image covers it at the import resolution. Each page has an
// attached pixmap background with no name yet.
//
// Pages decoded before a broken image or a failing Ghostscript are still
// returned; the error is only reported when nothing could be imported.
func (im Importer) Import(ctx context.Context, path string) ([]*state.Page, error) {
	ok, err := Sniff(path)
	if err != nil {
		return nil, fmt.Errorf("psimport: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotPostScript, path)
	}

	cmd := exec.CommandContext(ctx, im.command(),
		"-q", "-dSAFER", "-dNOPAUSE", "-dBATCH",
		"-sDEVICE=bmp16m",
		"-r"+strconv.Itoa(im.dpi()),
		"-sOutputFile=-",
		path)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("psimport: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("psimport: start %s: %w", im.command(), err)
	}
	pages, readErr := ReadPages(out, im.dpi())
	// drain so gs is not blocked writing when the stream broke early
	io.Copy(io.Discard, out)
	waitErr := cmd.Wait()

	log.Printf("[PSIMPORT] %s: %d pages at %d dpi", path, len(pages), im.dpi())
	if len(pages) == 0 {
		if readErr == nil {
			readErr = waitErr
		}
		if readErr == nil {
			readErr = errors.New("no pages")
		}
		return nil, fmt.Errorf("psimport: %s: %w", path, readErr)
	}
	if readErr != nil || waitErr != nil {
		log.Printf("[PSIMPORT] %s: stopped early: %v", path, errors.Join(readErr, waitErr))
	}
	return pages, nil
}

// ReadPages splits a stream of concatenated BMP files into pages. Each
// file is located through the size field of its header. Reading stops
// at end of input or at the first file that is cut short or does not
// decode; the pages read until then are returned together with the error.
func ReadPages(r io.Reader, dpi int) ([]*state.Page, error) {
	br := bufio.NewReader(r)
	var pages []*state.Page
	for {
		hdr := make([]byte, headerSize)
		n, err := io.ReadFull(br, hdr)
		if err == io.EOF {
			return pages, nil
		}
		if n < 6 || hdr[0] != 'B' || hdr[1] != 'M' {
			return pages, fmt.Errorf("page %d: not a BMP header", len(pages)+1)
		}
		if err != nil {
			return pages, fmt.Errorf("page %d: %w", len(pages)+1, err)
		}
		size := int(binary.LittleEndian.Uint32(hdr[2:6]))
		if size < headerSize {
			return pages, fmt.Errorf("page %d: bad BMP size %d", len(pages)+1, size)
		}
		data := make([]byte, size)
		copy(data, hdr)
		if _, err := io.ReadFull(br, data[headerSize:]); err != nil {
			return pages, fmt.Errorf("page %d: %w", len(pages)+1, err)
		}
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return pages, fmt.Errorf("page %d: %w", len(pages)+1, err)
		}

		bg := &state.Background{
			Type:     state.BgPixmap,
			Domain:   state.DomainAttach,
			Filename: state.NewRefString(""),
			Pixmap:   state.NewPixmap(img),
			DPI:      dpi,
		}
		b := img.Bounds()
		w := float64(b.Dx()) * 72 / float64(dpi)
		h := float64(b.Dy()) * 72 / float64(dpi)
		pages = append(pages, state.NewPageWithBg(bg, w, h))
	}
}
