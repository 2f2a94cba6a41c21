package tui

import (
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/johndauphine/chfile/internal/logging"
)

// CaptureOutput pipes stdout, stderr and the logger into the program as
// OutputMsg values. The returned func restores them.
func CaptureOutput(p *tea.Program) func() {
	r, w, err := os.Pipe()
	if err != nil {
		return func() {}
	}

	origStdout := os.Stdout
	origStderr := os.Stderr
	os.Stdout = w
	os.Stderr = w

	// No timestamps inside the TUI.
	logging.SetOutput(w)
	logging.SetSimpleMode(true)

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				p.Send(OutputMsg(string(buf[:n])))
			}
			if err != nil {
				return
			}
		}
	}()

	return func() {
		w.Close()
		os.Stdout = origStdout
		os.Stderr = origStderr
		logging.SetOutput(origStderr)
		logging.SetSimpleMode(false)
		// let the reader drain the last bytes
		time.Sleep(10 * time.Millisecond)
	}
}

var (
	programMu  sync.Mutex
	programRef *tea.Program
)

// SetProgramRef stores the running program so background work can post
// messages to it.
func SetProgramRef(p *tea.Program) {
	programMu.Lock()
	programRef = p
	programMu.Unlock()
}

// send posts msg to the running program, if any.
func send(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
