// Package gate derives which wizard steps are available from the current
// store snapshot and the discovery/preview state. It holds no state.
package gate

import (
	"github.com/johndauphine/chfile/internal/model"
	"github.com/johndauphine/chfile/internal/store"
)

// Step is a wizard step, in the order the user walks them.
type Step int

const (
	StepDirection Step = iota
	StepSource
	StepTarget
	StepColumns
	StepPreview
	StepExecute
)

func (s Step) String() string {
	switch s {
	case StepDirection:
		return "direction"
	case StepSource:
		return "source"
	case StepTarget:
		return "target"
	case StepColumns:
		return "columns"
	case StepPreview:
		return "preview"
	case StepExecute:
		return "execute"
	}
	return "unknown"
}

// PreviewState records the outcome of the latest preview attempt.
type PreviewState int

const (
	PreviewNone   PreviewState = iota // never attempted, or reset
	PreviewRows                       // succeeded with rows
	PreviewEmpty                      // succeeded with no rows
	PreviewFailed                     // errored
)

// Completed reports whether the attempt counts toward the execution gate.
func (p PreviewState) Completed() bool {
	return p == PreviewRows || p == PreviewEmpty
}

// Input is everything the gates depend on.
type Input struct {
	Snapshot        store.Snapshot
	Direction       model.Direction
	DiscoveredCount int
	Preview         PreviewState
}

// Gates is the visibility of each step.
type Gates struct {
	Source          bool
	Target          bool
	ColumnSelection bool
	Preview         bool
	Execution       bool
}

// Evaluate computes the gates for in.
func Evaluate(in Input) Gates {
	var g Gates
	if !in.Direction.Valid() {
		return g
	}
	g.Source = true
	g.Target = true
	g.ColumnSelection = in.DiscoveredCount > 0
	g.Preview = g.ColumnSelection
	g.Execution = in.Snapshot.EndpointConfigured(in.Direction.SourceType()) &&
		in.Snapshot.EndpointConfigured(in.Direction.TargetType()) &&
		len(in.Snapshot.Selected()) > 0 &&
		in.Preview.Completed()
	return g
}

// Current returns the furthest step that is enabled.
func (g Gates) Current() Step {
	switch {
	case g.Execution:
		return StepExecute
	case g.Preview:
		return StepPreview
	case g.ColumnSelection:
		return StepColumns
	case g.Target:
		return StepTarget
	case g.Source:
		return StepSource
	}
	return StepDirection
}

// Allows reports whether step is enabled.
func (g Gates) Allows(step Step) bool {
	switch step {
	case StepDirection:
		return true
	case StepSource:
		return g.Source
	case StepTarget:
		return g.Target
	case StepColumns:
		return g.ColumnSelection
	case StepPreview:
		return g.Preview
	case StepExecute:
		return g.Execution
	}
	return false
}
