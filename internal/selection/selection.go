// Package selection manages the per-column inclusion flags of a discovered
// schema and mirrors every change into the configuration store.
package selection

import (
	"fmt"
	"sync"

	"github.com/johndauphine/chfile/internal/model"
)

// Writer receives the full column list after each mutation.
// *store.Store satisfies it.
type Writer interface {
	SetSelectedColumns(cols []model.Column)
}

// Manager owns the discovered column list.
type Manager struct {
	mu   sync.Mutex
	cols []model.Column
	out  Writer
}

// New returns an empty manager flushing to w.
func New(w Writer) *Manager {
	return &Manager{out: w}
}

// Initialize replaces the list with cols, all included, in discovery
// order, and persists it.
func (m *Manager) Initialize(cols []model.Column) {
	m.mu.Lock()
	m.cols = make([]model.Column, len(cols))
	for i, c := range cols {
		c.Position = i
		c.Selected = true
		m.cols[i] = c
	}
	m.flushLocked()
}

// Clear drops the list without writing to the store.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.cols = nil
	m.mu.Unlock()
}

// SelectAll includes every column.
func (m *Manager) SelectAll() { m.setAll(true) }

// DeselectAll excludes every column.
func (m *Manager) DeselectAll() { m.setAll(false) }

func (m *Manager) setAll(v bool) {
	m.mu.Lock()
	for i := range m.cols {
		m.cols[i].Selected = v
	}
	m.flushLocked()
}

// Toggle flips the flag at index.
func (m *Manager) Toggle(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.cols) {
		n := len(m.cols)
		m.mu.Unlock()
		return fmt.Errorf("column index %d out of range [0,%d)", index, n)
	}
	m.cols[index].Selected = !m.cols[index].Selected
	m.flushLocked()
	return nil
}

// Set sets the flag of the named column. Unknown names are an error.
func (m *Manager) Set(name string, selected bool) error {
	m.mu.Lock()
	for i := range m.cols {
		if m.cols[i].Name == name {
			m.cols[i].Selected = selected
			m.flushLocked()
			return nil
		}
	}
	m.mu.Unlock()
	return fmt.Errorf("unknown column %q", name)
}

// Columns returns a copy of the full list with flags.
func (m *Manager) Columns() []model.Column {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneColumns(m.cols)
}

// Selected returns the included columns in discovery order.
func (m *Manager) Selected() []model.Column {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.SelectedOnly(m.cols)
}

// Len returns the number of discovered columns.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cols)
}

// flushLocked copies the list, releases the lock and writes the copy, so
// store subscribers may call back into the manager.
func (m *Manager) flushLocked() {
	cols := model.CloneColumns(m.cols)
	if cols == nil {
		cols = []model.Column{}
	}
	m.mu.Unlock()
	if m.out != nil {
		m.out.SetSelectedColumns(cols)
	}
}
