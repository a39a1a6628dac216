package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"InkJournal/internal/bgpdf"
	"InkJournal/internal/config"
	"InkJournal/internal/loop"
	"InkJournal/internal/psimport"
	"InkJournal/internal/session"
	"InkJournal/internal/state"
	"InkJournal/internal/ui"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "configuration file")
	exportPath := flag.String("export", "", "export the journal to this PDF and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [-export out.pdf] [journal.xoj]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var path string
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	newSession := func(h session.Host) *session.Session {
		return session.New(l, bgpdf.Poppler{Command: cfg.Pdftoppm}, h, session.Options{
			Template:    cfg.Template(),
			PrintDPI:    cfg.PrintDPI,
			DefaultZoom: cfg.DefaultZoom,
			Importer:    psimport.Importer{Command: cfg.Ghostscript, DPI: cfg.ImportDPI},
		})
	}

	if *exportPath != "" {
		if path == "" {
			flag.Usage()
			os.Exit(2)
		}
		log.Println("Exporting", path, "to", *exportPath)
		if err := runHeadless(l, newSession, path, *exportPath); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		return
	}

	log.Println("Starting viewer")
	ui.RunApp(l, newSession, path, cfg.DefaultZoom)
}

// runHeadless opens in, waits for every PDF background page to be
// rendered at print resolution and writes out.
func runHeadless(l *loop.Loop, newSession ui.NewSession, in, out string) error {
	result := make(chan error, 1)
	l.Post(func() {
		s := newSession(headlessHost{})
		if err := s.Open(in); err != nil {
			result <- err
			return
		}
		s.Export(out, func(err error) {
			s.Close()
			result <- err
		})
	})
	return <-result
}

// headlessHost logs what a window would show.
type headlessHost struct{}

func (headlessHost) PageAdded(pg *state.Page) {
	log.Printf("[HEADLESS] page added (%.0fx%.0f)", pg.Width, pg.Height)
}

func (headlessHost) PageResized(*state.Page)               {}
func (headlessHost) BackgroundChanged(*state.Page)         {}
func (headlessHost) PagesChanged()                         {}
func (headlessHost) DocumentChanged(*state.Journal)        {}
func (headlessHost) ShowError(msg string)                  { log.Printf("[HEADLESS] error: %s", msg) }
func (headlessHost) Warning(msg string)                    { log.Printf("[HEADLESS] warning: %s", msg) }
func (headlessHost) PickReplacement(string) (string, bool) { return "", false }
