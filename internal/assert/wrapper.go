package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flume/pkg/api"
)

// Wrapper wraps testify assertions with engine-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
}

// New creates a new test assertion wrapper
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// ExecutionStatus asserts the status of an execution record
func (w *Wrapper) ExecutionStatus(
	rec *api.Execution, expected api.ExecutionStatus,
) {
	w.Helper()
	w.Equal(expected, rec.Status)
}

// ExecutionSucceeded asserts a terminal successful record with the given
// final data value
func (w *Wrapper) ExecutionSucceeded(rec *api.Execution, final any) {
	w.Helper()
	w.Equal(api.ExecutionSucceeded, rec.Status)
	w.Nil(rec.Error)
	w.Equal(final, rec.Current)
	w.False(rec.FinishedAt.IsZero())
}

// ExecutionFailedAt asserts a terminal failed record whose first failure
// happened at the given 0-based step index
func (w *Wrapper) ExecutionFailedAt(rec *api.Execution, step int) {
	w.Helper()
	w.Equal(api.ExecutionFailed, rec.Status)
	if w.NotNil(rec.Error) {
		w.Equal(step, rec.Error.Step)
		w.NotEmpty(rec.Error.Message)
	}
	w.False(rec.FinishedAt.IsZero())
}

// WorkflowInvalid asserts that a workflow fails validation with the
// expected error
func (w *Wrapper) WorkflowInvalid(wf *api.Workflow, expected error) {
	w.Helper()
	err := wf.Validate()
	w.Error(err)
	w.ErrorIs(err, expected)
}
