package psimport

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"InkJournal/internal/state"
)

func bmpPage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func TestReadPages(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(bmpPage(t, 200, 100))
	stream.Write(bmpPage(t, 50, 100))

	pages, err := ReadPages(&stream, 100)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.InDelta(t, 144, pages[0].Width, 1e-9)
	assert.InDelta(t, 72, pages[0].Height, 1e-9)
	assert.InDelta(t, 36, pages[1].Width, 1e-9)

	for _, pg := range pages {
		bg := pg.Bg
		assert.Equal(t, state.BgPixmap, bg.Type)
		assert.Equal(t, state.DomainAttach, bg.Domain)
		assert.Equal(t, "", bg.Filename.S)
		assert.Equal(t, 100, bg.DPI)
		require.Len(t, pg.Layers, 1)
	}
	assert.False(t, pages[0].Bg.Filename.Same(pages[1].Bg.Filename))
	w, h := pages[1].Bg.Pixmap.Size()
	assert.Equal(t, []int{50, 100}, []int{w, h})
}

func TestReadPagesStopsAtGarbage(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(bmpPage(t, 10, 10))
	stream.WriteString("GPL Ghostscript: error\n")

	pages, err := ReadPages(&stream, 72)
	assert.Error(t, err)
	assert.Len(t, pages, 1)
}

func TestReadPagesTruncated(t *testing.T) {
	page := bmpPage(t, 10, 10)
	var stream bytes.Buffer
	stream.Write(page)
	stream.Write(page[:len(page)-5])

	pages, err := ReadPages(&stream, 72)
	assert.Error(t, err)
	assert.Len(t, pages, 1)
}

func TestReadPagesEmpty(t *testing.T) {
	pages, err := ReadPages(bytes.NewReader(nil), 72)
	assert.NoError(t, err)
	assert.Empty(t, pages)
}

func TestSniff(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.ps":  "%!PS-Adobe-3.0\n",
		"a.pdf": "%PDF-1.4\n",
		"a.txt": "hello",
		"short": "%!",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	for name, want := range map[string]bool{"a.ps": true, "a.pdf": true, "a.txt": false, "short": false} {
		got, err := Sniff(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := Sniff(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestImportRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := Importer{}.Import(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotPostScript)
}

// fakeGS writes a script that ignores its arguments and prints stream.
func fakeGS(t *testing.T, stream []byte) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(out, stream, 0o644))
	script := filepath.Join(dir, "gs")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat '"+out+"'\n"), 0o755))
	return script
}

func TestImportThroughPipe(t *testing.T) {
	src := filepath.Join(t.TempDir(), "doc.ps")
	require.NoError(t, os.WriteFile(src, []byte("%!PS\nshowpage\n"), 0o644))

	stream := append(bmpPage(t, 100, 100), bmpPage(t, 100, 200)...)
	im := Importer{Command: fakeGS(t, stream), DPI: 100}
	pages, err := im.Import(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.InDelta(t, 144, pages[1].Height, 1e-9)
}

func TestImportNothingRendered(t *testing.T) {
	src := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4\n"), 0o644))

	im := Importer{Command: fakeGS(t, nil)}
	_, err := im.Import(context.Background(), src)
	assert.Error(t, err)
}
