package api

import (
	"errors"
	"slices"
	"time"
)

// Workflow is a named, ordered pipeline of step references. A definition
// is immutable once captured into an execution's snapshot; redefining the
// name never mutates snapshots already taken
type Workflow struct {
	DefinedAt time.Time `json:"defined_at"`
	Name      string    `json:"name"`
	Steps     []StepRef `json:"steps"`
}

var (
	ErrWorkflowNameEmpty = errors.New("workflow name empty")
	ErrWorkflowNoSteps   = errors.New("workflow requires at least one step")
	ErrStepRefEmpty      = errors.New("step reference empty")
)

// Validate checks that a workflow has a usable name and a non-empty,
// well-formed step list
func (w *Workflow) Validate() error {
	if SanitizeID(w.Name) == "" {
		return ErrWorkflowNameEmpty
	}
	if len(w.Steps) == 0 {
		return ErrWorkflowNoSteps
	}
	for _, ref := range w.Steps {
		if ref == "" {
			return ErrStepRefEmpty
		}
	}
	return nil
}

// ID returns the identifier the workflow is stored under
func (w *Workflow) ID() WorkflowID {
	return WorkflowID(SanitizeID(w.Name))
}

// Snapshot returns an independent copy of the step list, so later
// redefinition of the workflow cannot reach executions already running
// against this snapshot
func (w *Workflow) Snapshot() []StepRef {
	return slices.Clone(w.Steps)
}

// Equal compares two workflow definitions, ignoring the definition time
func (w *Workflow) Equal(other *Workflow) bool {
	if w == nil || other == nil {
		return w == other
	}
	return w.Name == other.Name && slices.Equal(w.Steps, other.Steps)
}
