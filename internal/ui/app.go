// Package ui is the fyne front end. Widgets live on the fyne thread, the
// session lives on the loop; the two only talk through loop.Post one way
// and fyne.Do the other.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"InkJournal/internal/loop"
	"InkJournal/internal/session"
	"InkJournal/internal/state"
)

const closeTimeout = 5 * time.Second

// App is the main window and the session host.
type App struct {
	loop *loop.Loop
	sess *session.Session

	win    fyne.Window
	view   *PageView
	status *widget.Label

	// owned by the loop
	page        int
	zoom        float64
	defaultZoom float64
}

// NewSession creates the session for a host.
type NewSession func(h session.Host) *session.Session

// RunApp opens the window, loads path if it is not empty and blocks until
// the window is closed.
func RunApp(l *loop.Loop, newSession NewSession, path string, zoom float64) {
	fyneApp := app.NewWithID("org.inkjournal.viewer")
	a := &App{
		loop:        l,
		win:         fyneApp.NewWindow("InkJournal"),
		view:        NewPageView(),
		status:      widget.NewLabel(""),
		page:        1,
		zoom:        zoom,
		defaultZoom: zoom,
	}
	a.sess = newSession(a)
	a.win.Resize(fyne.NewSize(1024, 768))

	toolbar := NewToolbar(a)
	a.win.SetContent(container.NewBorder(toolbar, a.status, nil, nil, a.view))

	fyneApp.Lifecycle().SetOnStarted(func() {
		a.loop.Post(func() {
			if path != "" {
				a.report(a.sess.Open(path))
			}
			a.publish()
		})
	})
	a.win.ShowAndRun()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.loop.Call(ctx, a.sess.Close); err != nil {
		log.Printf("[UI] close: %v", err)
	}
}

// publish hands the current page to the view. Runs on the loop.
func (a *App) publish() {
	snap := snapshot(a.sess.Journal(), a.page)
	a.page = max(1, snap.num)
	text := snap.status(a.sess.Path(), a.zoom)
	zoom := a.zoom
	fyne.Do(func() {
		a.view.Show(snap, zoom)
		a.status.SetText(text)
	})
}

// report shows err, if any. Runs on the loop.
func (a *App) report(err error) {
	if err == nil {
		return
	}
	log.Printf("[UI] %v", err)
	fyne.Do(func() { dialog.ShowError(err, a.win) })
}

func (a *App) PageAdded(*state.Page)         { a.publish() }
func (a *App) PageResized(*state.Page)       { a.publish() }
func (a *App) BackgroundChanged(*state.Page) { a.publish() }
func (a *App) PagesChanged()                 { a.publish() }

func (a *App) ShowError(msg string) {
	a.report(errors.New(msg))
}

func (a *App) Warning(msg string) {
	log.Printf("[UI] warning: %s", msg)
	fyne.Do(func() { dialog.ShowInformation("Warning", msg, a.win) })
}

func (a *App) DocumentChanged(*state.Journal) {
	a.page = 1
	a.zoom = a.defaultZoom
	a.publish()
}

// PickReplacement runs on the loop and waits for the dialogs on the fyne
// thread.
func (a *App) PickReplacement(missing string) (string, bool) {
	answer := make(chan string, 1)
	fyne.Do(func() {
		msg := fmt.Sprintf("Could not open background '%s'.\nSelect another file?", missing)
		dialog.ShowConfirm("Background not found", msg, func(yes bool) {
			if !yes {
				answer <- ""
				return
			}
			fd := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
				if err != nil || r == nil {
					answer <- ""
					return
				}
				r.Close()
				answer <- r.URI().Path()
			}, a.win)
			fd.SetFilter(storage.NewExtensionFileFilter([]string{".pdf"}))
			fd.Show()
		}, a.win)
	})
	path := <-answer
	return path, path != ""
}
