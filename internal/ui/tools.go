package ui

import (
	"context"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"InkJournal/internal/psimport"
)

const (
	zoomStep = 1.5
	minZoom  = 0.25
	maxZoom  = 8
)

// NewToolbar builds the file, navigation and zoom controls.
func NewToolbar(a *App) fyne.CanvasObject {
	file := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentCreateIcon(), func() {
			a.loop.Post(a.sess.NewJournal)
		}),
		widget.NewToolbarAction(theme.FolderOpenIcon(), a.openFile),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), a.save),
		widget.NewToolbarAction(theme.DocumentPrintIcon(), a.exportPDF),
	)
	backgrounds := container.NewHBox(
		widget.NewButton("Annotate PDF", a.annotatePDF),
		widget.NewButton("Load background", a.loadBackground),
	)
	nav := widget.NewToolbar(
		widget.NewToolbarAction(theme.NavigateBackIcon(), func() { a.loop.Post(func() { a.goToPage(a.page - 1) }) }),
		widget.NewToolbarAction(theme.NavigateNextIcon(), func() { a.loop.Post(func() { a.goToPage(a.page + 1) }) }),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomOutIcon(), func() { a.loop.Post(func() { a.setZoom(a.zoom / zoomStep) }) }),
		widget.NewToolbarAction(theme.ZoomFitIcon(), func() { a.loop.Post(func() { a.setZoom(a.defaultZoom) }) }),
		widget.NewToolbarAction(theme.ZoomInIcon(), func() { a.loop.Post(func() { a.setZoom(a.zoom * zoomStep) }) }),
	)

	return container.NewHBox(
		file,
		widget.NewSeparator(),
		backgrounds,
		widget.NewSeparator(),
		nav,
		layout.NewSpacer(),
	)
}

// goToPage and setZoom run on the loop.
func (a *App) goToPage(n int) {
	j := a.sess.Journal()
	if j == nil || n < 1 || n > len(j.Pages) {
		return
	}
	a.page = n
	a.sess.ShowPage(a.page, a.zoom)
	a.publish()
}

func (a *App) setZoom(z float64) {
	a.zoom = min(maxZoom, max(minZoom, z))
	a.sess.ShowPage(a.page, a.zoom)
	a.publish()
}

// pickFile shows an open dialog and hands the chosen path to fn on the loop.
func (a *App) pickFile(exts []string, fn func(path string)) {
	fd := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.win)
			return
		}
		if r == nil {
			return
		}
		path := r.URI().Path()
		r.Close()
		a.loop.Post(func() { fn(path) })
	}, a.win)
	if len(exts) > 0 {
		fd.SetFilter(storage.NewExtensionFileFilter(exts))
	}
	fd.Show()
}

// pickSaveFile is pickFile for a file to be written.
func (a *App) pickSaveFile(name string, fn func(path string)) {
	fd := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.win)
			return
		}
		if w == nil {
			return
		}
		path := w.URI().Path()
		w.Close()
		a.loop.Post(func() { fn(path) })
	}, a.win)
	fd.SetFileName(name)
	fd.Show()
}

func (a *App) openFile() {
	a.pickFile([]string{".xoj", ".pdf"}, func(path string) {
		a.report(a.sess.Open(path))
	})
}

func (a *App) save() {
	a.loop.Post(func() {
		if path := a.sess.Path(); path != "" {
			a.report(a.sess.Save(path))
			return
		}
		fyne.Do(a.saveAs)
	})
}

func (a *App) saveAs() {
	a.pickSaveFile("journal.xoj", func(path string) {
		a.report(a.sess.Save(path))
		a.publish()
	})
}

func (a *App) exportPDF() {
	a.pickSaveFile("journal.pdf", func(path string) {
		a.sess.Export(path, func(err error) {
			if err != nil {
				a.report(err)
				return
			}
			fyne.Do(func() { dialog.ShowInformation("Export", "Exported to "+path, a.win) })
		})
	})
}

func (a *App) annotatePDF() {
	a.pickFile([]string{".pdf"}, func(path string) {
		a.report(a.sess.NewWithPDF(path, false))
	})
}

// loadBackground puts an image behind the current page, or lays the
// pages of a PostScript or PDF file over the journal from here on.
func (a *App) loadBackground() {
	a.pickFile(nil, func(path string) {
		ps, err := psimport.Sniff(path)
		if err != nil {
			a.report(err)
			return
		}
		if ps {
			a.sess.ImportPostScript(context.Background(), a.page, path, a.report)
			return
		}
		a.report(a.sess.LoadPixmapBackground(a.page, path, true))
	})
}
