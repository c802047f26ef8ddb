package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flume/pkg/api"
)

func TestNewExecution(t *testing.T) {
	steps := []api.StepRef{"double", "add1"}
	rec := api.NewExecution("exec-1", "pipeline", steps, 5)

	assert.Equal(t, api.ExecutionID("exec-1"), rec.ID)
	assert.Equal(t, "pipeline", rec.Workflow)
	assert.Equal(t, steps, rec.Steps)
	assert.Equal(t, api.ExecutionPending, rec.Status)
	assert.Equal(t, 5, rec.Input)
	assert.Equal(t, 5, rec.Current)
	assert.Zero(t, rec.StepIndex)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestIsTerminal(t *testing.T) {
	rec := api.NewExecution("e", "w", []api.StepRef{"x"}, nil)
	assert.False(t, rec.IsTerminal())
	assert.False(t, rec.SetStatus(api.ExecutionRunning).IsTerminal())
	assert.True(t, rec.SetStatus(api.ExecutionSucceeded).IsTerminal())
	assert.True(t, rec.SetStatus(api.ExecutionFailed).IsTerminal())
}

func TestCanTransition(t *testing.T) {
	rec := api.NewExecution("e", "w", []api.StepRef{"x"}, nil)

	t.Run("pending forward", func(t *testing.T) {
		assert.True(t, rec.CanTransition(api.ExecutionRunning))
		assert.True(t, rec.CanTransition(api.ExecutionSucceeded))
		assert.True(t, rec.CanTransition(api.ExecutionFailed))
	})

	t.Run("no self transition", func(t *testing.T) {
		assert.False(t, rec.CanTransition(api.ExecutionPending))
	})

	t.Run("running to terminal only", func(t *testing.T) {
		running := rec.SetStatus(api.ExecutionRunning)
		assert.False(t, running.CanTransition(api.ExecutionPending))
		assert.False(t, running.CanTransition(api.ExecutionRunning))
		assert.True(t, running.CanTransition(api.ExecutionSucceeded))
		assert.True(t, running.CanTransition(api.ExecutionFailed))
	})

	t.Run("terminal is final", func(t *testing.T) {
		done := rec.SetStatus(api.ExecutionSucceeded)
		assert.False(t, done.CanTransition(api.ExecutionRunning))
		assert.False(t, done.CanTransition(api.ExecutionFailed))

		failed := rec.SetStatus(api.ExecutionFailed)
		assert.False(t, failed.CanTransition(api.ExecutionSucceeded))
	})

	t.Run("unknown status", func(t *testing.T) {
		assert.False(t, rec.CanTransition("bogus"))
	})
}

func TestExecutionSetters(t *testing.T) {
	rec := api.NewExecution("e", "w", []api.StepRef{"x", "y"}, 1)

	t.Run("SetStatus copies", func(t *testing.T) {
		res := rec.SetStatus(api.ExecutionRunning)
		assert.Equal(t, api.ExecutionRunning, res.Status)
		assert.Equal(t, api.ExecutionPending, rec.Status)
	})

	t.Run("SetCurrent advances", func(t *testing.T) {
		res := rec.SetCurrent(2, 1)
		assert.Equal(t, 2, res.Current)
		assert.Equal(t, 1, res.StepIndex)
		assert.Equal(t, 1, rec.Current)
		assert.Zero(t, rec.StepIndex)
	})

	t.Run("SetError copies", func(t *testing.T) {
		stepErr := &api.StepError{Step: 1, Ref: "y", Message: "boom"}
		res := rec.SetError(stepErr)
		assert.Equal(t, stepErr, res.Error)
		assert.Nil(t, rec.Error)
	})

	t.Run("timestamps", func(t *testing.T) {
		now := time.Unix(1000, 0)
		assert.Equal(t, now, rec.SetStartedAt(now).StartedAt)
		assert.Equal(t, now, rec.SetFinishedAt(now).FinishedAt)
		assert.True(t, rec.StartedAt.IsZero())
	})
}

func TestStepErrorMessage(t *testing.T) {
	stepErr := &api.StepError{Step: 2, Ref: "scripts/double.lua", Message: "boom"}
	assert.Equal(t, "step 2 (scripts/double.lua): boom", stepErr.Error())
}
