// Package progress renders execution progress on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker shows a percent bar driven by executor progress updates.
type Tracker struct {
	out       io.Writer
	desc      string
	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	percent   int
	startTime time.Time
}

// New creates a tracker writing to out (stderr when nil).
func New(out io.Writer, description string) *Tracker {
	if out == nil {
		out = os.Stderr
	}
	return &Tracker{out: out, desc: description, startTime: time.Now()}
}

func (t *Tracker) ensureBar() {
	if t.bar != nil {
		return
	}
	t.bar = progressbar.NewOptions(
		100,
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(t.desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update matches the executor progress hook. Hidden updates clear the bar.
func (t *Tracker) Update(percent int, visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !visible {
		if t.bar != nil {
			t.bar.Clear()
		}
		t.percent = 0
		return
	}
	t.ensureBar()
	if percent < t.percent {
		t.bar.Reset()
	}
	t.percent = percent
	t.bar.Set(percent)
}

// Percent returns the last visible percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// Finish completes the bar and prints a summary line.
func (t *Tracker) Finish(records int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bar != nil {
		t.bar.Finish()
	}
	elapsed := time.Since(t.startTime)
	rate := float64(records) / elapsed.Seconds()

	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "Transferred %d records in %s (%.0f records/sec)\n",
		records, elapsed.Round(time.Millisecond), rate)
}
