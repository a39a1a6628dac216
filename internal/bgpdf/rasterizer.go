package bgpdf

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // rasters come back as PNG
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// Job is one page to rasterize.
type Job struct {
	PDF        string // the pipeline's private copy of the source
	OutputRoot string // output path without extension
	Page       int    // 1-based
	DPI        int
}

// Output is the file a finished job is expected to have written.
func (j Job) Output() string { return j.OutputRoot + ".png" }

// Process is a running rasterizer.
type Process interface {
	// Terminate asks the process to stop. Its done callback still fires.
	Terminate() error
}

// Rasterizer starts external renders. done is called exactly once, from an
// arbitrary goroutine, after the process has exited. A non-nil error from
// Start means nothing was started and done will never be called.
type Rasterizer interface {
	Start(job Job, done func(error)) (Process, error)
}

// Poppler runs pdftoppm.
type Poppler struct {
	// Command is the executable, "pdftoppm" if empty.
	Command string
}

func (p Poppler) command() string {
	if p.Command == "" {
		return "pdftoppm"
	}
	return p.Command
}

func (p Poppler) Start(job Job, done func(error)) (Process, error) {
	page := strconv.Itoa(job.Page)
	cmd := exec.Command(p.command(),
		"-q", "-png", "-singlefile",
		"-r", strconv.Itoa(job.DPI),
		"-f", page, "-l", page,
		job.PDF, job.OutputRoot)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.command(), err)
	}
	go func() {
		done(cmd.Wait())
	}()
	return popplerProcess{cmd.Process}, nil
}

type popplerProcess struct {
	p *os.Process
}

func (pp popplerProcess) Terminate() error {
	return pp.p.Signal(syscall.SIGHUP)
}

// IsPDF sniffs the magic bytes of a PDF file.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

func loadRaster(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
