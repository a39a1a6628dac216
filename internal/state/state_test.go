package state

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/geom/rect"
)

func TestRefStringSharing(t *testing.T) {
	a := NewRefString("doc.pdf")
	b := a.Ref()
	require.True(t, a.Same(b))
	assert.Equal(t, 2, a.Refs())

	b.S = "moved.pdf"
	assert.Equal(t, "moved.pdf", a.S)

	b.Unref()
	assert.Equal(t, "moved.pdf", a.S)
	a.Unref()
	assert.Equal(t, 0, a.Refs())
	assert.Empty(t, a.S)

	assert.False(t, NewRefString("x").Same(NewRefString("x")))
}

func TestPixmapRelease(t *testing.T) {
	p := NewPixmap(image.NewGray(image.Rect(0, 0, 3, 2)))
	q := p.Ref()
	w, h := q.Size()
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)

	p.Unref()
	require.NotNil(t, q.Image)
	q.Unref()
	assert.Nil(t, q.Image)
	q.Unref() // already gone
	assert.Equal(t, 0, q.Refs())
}

func TestStrokeBBox(t *testing.T) {
	s := NewStroke(Brush{Tool: ToolPen, Thickness: 2}, []float64{10, 20, 30, 5, 15, 40})
	assert.Equal(t, rect.Rect{LLx: 9, LLy: 4, URx: 31, URy: 41}, s.BBox())
	assert.Equal(t, 3, s.NumPoints())
}

func TestAttachNames(t *testing.T) {
	n, ok := ParseAttachName(AttachName(17))
	require.True(t, ok)
	assert.Equal(t, 17, n)

	for _, bad := range []string{"bg_.png", "bg_3.jpg", "fg_3.png", "bg_3.png.bak", "bg_-1.png"} {
		_, ok := ParseAttachName(bad)
		assert.False(t, ok, bad)
	}
}

func TestAssignAttachNames(t *testing.T) {
	j := NewJournal(DefaultTemplate)
	shared := NewRefString("")
	img := NewPixmap(image.NewGray(image.Rect(0, 0, 1, 1)))
	for i := 0; i < 2; i++ {
		bg := &Background{Type: BgPixmap, Domain: DomainAttach, Filename: shared.Ref(), Pixmap: img.Ref()}
		j.Pages = append(j.Pages, NewPageWithBg(bg, 100, 100))
	}
	named := &Background{Type: BgPixmap, Domain: DomainAttach, Filename: NewRefString("bg_9.png"), Pixmap: img.Ref()}
	j.Pages = append(j.Pages, NewPageWithBg(named, 100, 100))
	j.Attach.Update(4)

	j.AssignAttachNames()
	assert.Equal(t, "bg_5.png", shared.S)
	assert.Equal(t, "bg_9.png", named.Filename.S)

	j.AssignAttachNames()
	assert.Equal(t, 5, j.Attach.Value())
}

func TestAttachClockOnlyMovesForward(t *testing.T) {
	var c AttachClock
	c.Update(3)
	c.Update(1)
	assert.Equal(t, 4, c.Tick())
}

func TestParseNames(t *testing.T) {
	tool, ok := ParseTool("highlighter")
	require.True(t, ok)
	assert.Equal(t, ToolHighlighter, tool)

	d, ok := ParseDomain("clone")
	require.True(t, ok)
	assert.Equal(t, DomainClone, d)

	_, ok = ParseRuling("dotted")
	assert.False(t, ok)

	c, ok := PenColors.Lookup("red")
	require.True(t, ok)
	assert.Equal(t, uint32(0xff0000ff), c.RGBA)
	name, ok := PenColors.Name(c)
	require.True(t, ok)
	assert.Equal(t, "red", name)
	_, ok = PenColors.Name(RGBAColor(0x12345678))
	assert.False(t, ok)
}

func TestRulingLines(t *testing.T) {
	assert.Empty(t, RulingLines(RulingPlain, 612, 792))

	lined := RulingLines(RulingLined, 612, 792)
	ruled := RulingLines(RulingRuled, 612, 792)
	require.Len(t, lined, len(ruled)+1)
	margin := lined[len(lined)-1]
	assert.Equal(t, RulingMarginColor, margin.Color)
	assert.Equal(t, RulingLeftMargin, margin.X1)

	for _, l := range RulingLines(RulingGraph, 100, 100) {
		assert.Equal(t, RulingColor, l.Color)
	}
}

func TestDeleteReleasesHandles(t *testing.T) {
	j := NewJournal(DefaultTemplate)
	name := NewRefString("a.png")
	img := NewPixmap(image.NewGray(image.Rect(0, 0, 1, 1)))
	j.Pages = append(j.Pages,
		NewPageWithBg(&Background{Type: BgPixmap, Filename: name, Pixmap: img}, 10, 10),
		NewPageWithBg(&Background{Type: BgPixmap, Domain: DomainAbsolute, Filename: name.Ref(), Pixmap: img.Ref()}, 10, 10),
	)
	j.Delete()
	assert.Equal(t, 0, name.Refs())
	assert.Nil(t, img.Image)
}
