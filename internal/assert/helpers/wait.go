package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flume/internal/engine"
	"github.com/kode4food/flume/pkg/api"
)

type (
	// EventFilter decides whether a lifecycle event matches
	EventFilter func(*engine.Event) bool

	// EventWaiter waits for events matching a filter. Create it before
	// triggering the action it waits for
	EventWaiter struct {
		consumer engine.Consumer
		filter   EventFilter
		getState func(context.Context) (*api.Execution, error)
		desc     string
	}
)

// DefaultTimeout bounds how long the helpers wait for an event
const DefaultTimeout = 5 * time.Second

// Wait blocks until a matching event arrives and returns the current
// execution record
func (w *EventWaiter) Wait(t *testing.T, ctx context.Context) *api.Execution {
	t.Helper()
	defer w.consumer.Close()

	deadline := time.After(DefaultTimeout)
	for {
		select {
		case ev, ok := <-w.consumer.Receive():
			if !ok {
				t.Fatalf("event hub closed waiting for %s", w.desc)
			}
			if ev == nil || !w.filter(ev) {
				continue
			}
			rec, err := w.getState(ctx)
			assert.NoError(t, err)
			return rec
		case <-deadline:
			t.Fatalf("timeout waiting for %s", w.desc)
		case <-ctx.Done():
			t.FailNow()
		}
	}
}

// SubscribeToTerminal creates a waiter for an execution reaching a
// terminal status
func (e *TestEnv) SubscribeToTerminal(id api.ExecutionID) *EventWaiter {
	return &EventWaiter{
		consumer: e.Hub.NewConsumer(),
		filter: And(
			Types(engine.EventExecutionSucceeded, engine.EventExecutionFailed),
			ForExecution(id),
		),
		getState: func(ctx context.Context) (*api.Execution, error) {
			return e.Coordinator.Status(ctx, id)
		},
		desc: string(id),
	}
}

// SubscribeToStepsCompleted creates a waiter that fires once count
// step-completed events have been seen for the execution
func (e *TestEnv) SubscribeToStepsCompleted(
	id api.ExecutionID, count int,
) *EventWaiter {
	seen := 0
	return &EventWaiter{
		consumer: e.Hub.NewConsumer(),
		filter: And(
			Type(engine.EventStepCompleted),
			ForExecution(id),
			func(*engine.Event) bool {
				seen++
				return seen >= count
			},
		),
		getState: func(ctx context.Context) (*api.Execution, error) {
			return e.Coordinator.Status(ctx, id)
		},
		desc: string(id),
	}
}

// StartAndWait starts the named workflow and blocks until its execution
// reaches a terminal status, returning the final record
func (e *TestEnv) StartAndWait(
	t *testing.T, ctx context.Context, workflow string, input any,
) *api.Execution {
	t.Helper()
	id, err := e.Coordinator.Start(ctx, workflow, input)
	assert.NoError(t, err)
	return e.WaitForTerminal(t, ctx, id)
}

// WaitForTerminal polls the store until the execution reaches a terminal
// status. Useful when the caller could not subscribe before starting
func (e *TestEnv) WaitForTerminal(
	t *testing.T, ctx context.Context, id api.ExecutionID,
) *api.Execution {
	t.Helper()

	deadline := time.After(DefaultTimeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			rec, err := e.Coordinator.Status(ctx, id)
			assert.NoError(t, err)
			if rec.IsTerminal() {
				return rec
			}
		case <-deadline:
			t.Fatalf("timeout waiting for execution %s", id)
		case <-ctx.Done():
			t.FailNow()
		}
	}
}

// And composes event filters and returns true when all match
func And(filters ...EventFilter) EventFilter {
	return func(ev *engine.Event) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

// Type creates a filter for a single event type
func Type(eventType engine.EventType) EventFilter {
	return Types(eventType)
}

// Types creates a filter for the given event types
func Types(eventTypes ...engine.EventType) EventFilter {
	return func(ev *engine.Event) bool {
		for _, et := range eventTypes {
			if ev.Type == et {
				return true
			}
		}
		return false
	}
}

// ForExecution matches events carrying the given execution's record
func ForExecution(id api.ExecutionID) EventFilter {
	return func(ev *engine.Event) bool {
		return ev.Record != nil && ev.Record.ID == id
	}
}
