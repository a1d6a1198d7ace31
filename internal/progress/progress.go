package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const spinnerFrames = "|/-\\"

// Bar is a single-line status display for a scan whose total is not known
// up front. It shows files seen, duplicates moved and the current folder.
type Bar struct {
	writer     io.Writer
	mu         sync.Mutex
	files      int64
	duplicates int64
	dir        string
	frame      int
	enabled    bool
	lastUpdate time.Time
	interval   time.Duration
}

// New returns a Bar writing to stdout, enabled only when stdout is a terminal.
func New() *Bar {
	return NewWriter(os.Stdout, isTerminal(os.Stdout))
}

// NewWriter returns a Bar writing to w.
func NewWriter(w io.Writer, enabled bool) *Bar {
	return &Bar{
		writer:   w,
		enabled:  enabled,
		interval: 100 * time.Millisecond,
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (b *Bar) SetDirectory(dir string) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.dir = dir
}

// Increment records one processed file, and one duplicate when dup is set.
func (b *Bar) Increment(dup bool) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.files++
	if dup {
		b.duplicates++
	}

	// Update at most every interval to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) > b.interval {
		b.lastUpdate = now
		b.render()
	}
}

// render must be called with mu already locked
func (b *Bar) render() {
	b.frame = (b.frame + 1) % len(spinnerFrames)

	var dirDisplay string
	if b.dir != "" {
		dirDisplay = " | " + filepath.Base(b.dir)
	}

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K[%c] %d files, %d duplicates%s",
		spinnerFrames[b.frame], b.files, b.duplicates, dirDisplay)
}

// Counts returns the files and duplicates recorded so far.
func (b *Bar) Counts() (files, duplicates int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files, b.duplicates
}

func (b *Bar) Finish() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.dir = ""
	b.render()
	fmt.Fprintln(b.writer)
}
