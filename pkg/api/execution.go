package api

import (
	"fmt"
	"time"
)

type (
	// ExecutionStatus represents the current state of an execution
	ExecutionStatus string

	// Execution is the status record for one run of a workflow. The step
	// list is the snapshot captured at start time, not a live reference
	Execution struct {
		StartedAt  time.Time       `json:"started_at,omitempty"`
		FinishedAt time.Time       `json:"finished_at,omitempty"`
		CreatedAt  time.Time       `json:"created_at"`
		Input      any             `json:"input_data"`
		Current    any             `json:"current_data"`
		Error      *StepError      `json:"error,omitempty"`
		ID         ExecutionID     `json:"execution_id"`
		Workflow   string          `json:"workflow_name"`
		Status     ExecutionStatus `json:"status"`
		Steps      []StepRef       `json:"steps_snapshot"`
		StepIndex  int             `json:"current_step_index"`
	}

	// StepError describes the first failure of an execution: the 0-based
	// index of the failing step, its reference, and the cause
	StepError struct {
		Step    int     `json:"step"`
		Ref     StepRef `json:"ref"`
		Message string  `json:"message"`
	}
)

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// statusRank orders statuses so that transitions are monotonic. Terminal
// statuses share a rank and never transition further
var statusRank = map[ExecutionStatus]int{
	ExecutionPending:   0,
	ExecutionRunning:   1,
	ExecutionSucceeded: 2,
	ExecutionFailed:    2,
}

// NewExecution creates a pending execution record for the provided
// workflow snapshot and initial data
func NewExecution(
	id ExecutionID, workflow string, steps []StepRef, input any,
) *Execution {
	return &Execution{
		ID:        id,
		Workflow:  workflow,
		Steps:     steps,
		Status:    ExecutionPending,
		Input:     input,
		Current:   input,
		CreatedAt: time.Now(),
	}
}

// IsTerminal reports whether the execution has reached a final status
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionSucceeded || e.Status == ExecutionFailed
}

// CanTransition reports whether moving to the target status respects the
// pending -> running -> {succeeded | failed} machine
func (e *Execution) CanTransition(to ExecutionStatus) bool {
	from, ok := statusRank[e.Status]
	if !ok {
		return false
	}
	target, ok := statusRank[to]
	if !ok {
		return false
	}
	return !e.IsTerminal() && target > from
}

// SetStatus returns a new Execution with the updated status
func (e *Execution) SetStatus(s ExecutionStatus) *Execution {
	res := *e
	res.Status = s
	return &res
}

// SetStartedAt returns a new Execution with the start timestamp set
func (e *Execution) SetStartedAt(t time.Time) *Execution {
	res := *e
	res.StartedAt = t
	return &res
}

// SetFinishedAt returns a new Execution with the completion timestamp set
func (e *Execution) SetFinishedAt(t time.Time) *Execution {
	res := *e
	res.FinishedAt = t
	return &res
}

// SetCurrent returns a new Execution with the threaded data value
// replaced and the step index advanced
func (e *Execution) SetCurrent(data any, nextStep int) *Execution {
	res := *e
	res.Current = data
	res.StepIndex = nextStep
	return &res
}

// SetError returns a new Execution with the failure recorded
func (e *Execution) SetError(err *StepError) *Execution {
	res := *e
	res.Error = err
	return &res
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %s", e.Step, e.Ref, e.Message)
}
