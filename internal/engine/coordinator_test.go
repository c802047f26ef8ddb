package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kode4food/flume/internal/assert"
	"github.com/kode4food/flume/internal/assert/helpers"
	"github.com/kode4food/flume/internal/engine"
	"github.com/kode4food/flume/internal/registry"
	"github.com/kode4food/flume/pkg/api"
)

func TestStartReturnsImmediately(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "pipeline", []api.StepRef{"double", "add1"},
		)
		as.NoError(err)

		id, err := env.Coordinator.Start(ctx, "pipeline", 5)
		as.NoError(err)
		as.NotEmpty(id)

		rec, err := env.Coordinator.Status(ctx, id)
		as.NoError(err)
		as.NotEmpty(rec.Status)
	})
}

func TestExecutionThreadsData(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "pipeline", []api.StepRef{"double", "add1"},
		)
		as.NoError(err)

		rec := env.StartAndWait(t, ctx, "pipeline", 5)
		as.ExecutionSucceeded(rec, float64(11))
		as.Equal(float64(5), rec.Input)
		as.Equal(2, rec.StepIndex)

		as.Equal(1, env.Steps.Count("double"))
		as.Equal(1, env.Steps.Count("add1"))
		as.Equal([]any{float64(5)}, env.Steps.Inputs("double"))
		as.Equal([]any{float64(10)}, env.Steps.Inputs("add1"))
	})
}

func TestExecutionFailsMidChain(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "fragile", []api.StepRef{"double", "boom", "add1"},
		)
		as.NoError(err)

		rec := env.StartAndWait(t, ctx, "fragile", 5)
		as.ExecutionFailedAt(rec, 1)
		as.Equal(api.StepRef("boom"), rec.Error.Ref)
		as.Contains(rec.Error.Message, "boom")

		// Data produced before the failure stays on the record
		as.Equal(float64(10), rec.Current)
		as.Equal(1, rec.StepIndex)

		// Steps after the failing one never run
		as.Equal(1, env.Steps.Count("double"))
		as.Equal(1, env.Steps.Count("boom"))
		as.Zero(env.Steps.Count("add1"))
	})
}

func TestUnresolvableStepFails(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "broken", []api.StepRef{"double", "no-such-step"},
		)
		as.NoError(err)

		rec := env.StartAndWait(t, ctx, "broken", 5)
		as.ExecutionFailedAt(rec, 1)
		as.Contains(rec.Error.Message, "unresolvable")
	})
}

func TestPanickedStepFails(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "volatile", []api.StepRef{"panic"},
		)
		as.NoError(err)

		rec := env.StartAndWait(t, ctx, "volatile", 5)
		as.ExecutionFailedAt(rec, 0)
		as.Contains(rec.Error.Message, "transform exploded")
	})
}

func TestStartUnknownWorkflow(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)

		_, err := env.Coordinator.Start(context.Background(), "missing", 5)
		as.ErrorIs(err, registry.ErrWorkflowNotFound)

		// No execution record exists for a rejected start
		as.Empty(env.Redis.Keys())
	})
}

func TestSnapshotSurvivesRedefinition(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		gate := make(chan struct{})
		env.Loader.RegisterHandler("gate",
			env.Steps.Wrap("gate",
				func(_ context.Context, data any) (any, error) {
					<-gate
					return data, nil
				}))

		_, err := env.Registry.Define(
			ctx, "pipeline", []api.StepRef{"gate", "double"},
		)
		as.NoError(err)

		id, err := env.Coordinator.Start(ctx, "pipeline", 5)
		as.NoError(err)

		// Redefine while the first step is still in flight
		_, err = env.Registry.Define(ctx, "pipeline", []api.StepRef{"boom"})
		as.NoError(err)
		close(gate)

		rec := env.WaitForTerminal(t, ctx, id)
		as.ExecutionSucceeded(rec, float64(10))
		as.Equal([]api.StepRef{"gate", "double"}, rec.Steps)
		as.Zero(env.Steps.Count("boom"))

		// A fresh start picks up the new definition
		next := env.StartAndWait(t, ctx, "pipeline", 5)
		as.ExecutionFailedAt(next, 0)
	})
}

func TestConcurrentExecutions(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "pipeline", []api.StepRef{"double", "add1"},
		)
		as.NoError(err)

		const runs = 10
		ids := make([]api.ExecutionID, runs)
		for i := range runs {
			id, err := env.Coordinator.Start(ctx, "pipeline", i)
			as.NoError(err)
			ids[i] = id
		}

		seen := map[api.ExecutionID]bool{}
		for i, id := range ids {
			as.False(seen[id])
			seen[id] = true

			rec := env.WaitForTerminal(t, ctx, id)
			as.ExecutionSucceeded(rec, float64(i*2+1))
		}
		as.Equal(runs, env.Steps.Count("double"))
	})
}

func TestLifecycleEvents(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(
			ctx, "pipeline", []api.StepRef{"double", "add1"},
		)
		as.NoError(err)

		consumer := env.Hub.NewConsumer()
		defer consumer.Close()

		id, err := env.Coordinator.Start(ctx, "pipeline", 5)
		as.NoError(err)

		expected := []engine.EventType{
			engine.EventExecutionStarted,
			engine.EventStepCompleted,
			engine.EventStepCompleted,
			engine.EventExecutionSucceeded,
		}

		deadline := time.After(helpers.DefaultTimeout)
		var got []engine.EventType
		for len(got) < len(expected) {
			select {
			case ev, ok := <-consumer.Receive():
				if !ok {
					t.Fatal("event hub closed")
				}
				if ev.Record.ID != id {
					continue
				}
				got = append(got, ev.Type)
			case <-deadline:
				t.Fatal("timeout waiting for lifecycle events")
			}
		}
		as.Equal(expected, got)
	})
}

func TestFailureEvent(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		_, err := env.Registry.Define(ctx, "fragile", []api.StepRef{"boom"})
		as.NoError(err)

		id, err := env.Coordinator.Start(ctx, "fragile", 5)
		as.NoError(err)

		rec := env.SubscribeToTerminal(id).Wait(t, ctx)
		as.ExecutionFailedAt(rec, 0)
	})
}

type recordingArchiver struct {
	records []*api.Execution
	mu      sync.Mutex
}

func (a *recordingArchiver) Archive(_ context.Context, rec *api.Execution) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingArchiver) archived() []*api.Execution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*api.Execution{}, a.records...)
}

func TestTerminalRecordsArchived(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		archiver := &recordingArchiver{}
		coord := engine.New(
			env.Registry, env.Store, env.Loader, env.Hub, archiver,
		)
		defer func() { _ = coord.Stop(2 * time.Second) }()

		_, err := env.Registry.Define(ctx, "pipeline", []api.StepRef{"double"})
		as.NoError(err)

		id, err := coord.Start(ctx, "pipeline", 5)
		as.NoError(err)
		rec := env.WaitForTerminal(t, ctx, id)
		as.ExecutionSucceeded(rec, float64(10))

		archived := archiver.archived()
		if as.Len(archived, 1) {
			as.Equal(id, archived[0].ID)
			as.Equal(api.ExecutionSucceeded, archived[0].Status)
		}
	})
}

func TestStopWaitsForInFlight(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		gate := make(chan struct{})
		env.Loader.RegisterHandler("slow",
			func(_ context.Context, data any) (any, error) {
				<-gate
				return data, nil
			})

		_, err := env.Registry.Define(ctx, "slow-flow", []api.StepRef{"slow"})
		as.NoError(err)

		id, err := env.Coordinator.Start(ctx, "slow-flow", 1)
		as.NoError(err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(gate)
		}()
		as.NoError(env.Coordinator.Stop(helpers.DefaultTimeout))

		rec, err := env.Store.Get(ctx, id)
		as.NoError(err)
		as.True(rec.IsTerminal())
	})
}

func TestStopTimeout(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		ctx := context.Background()

		gate := make(chan struct{})
		defer close(gate)
		env.Loader.RegisterHandler("stuck",
			func(_ context.Context, data any) (any, error) {
				<-gate
				return data, nil
			})

		_, err := env.Registry.Define(ctx, "stuck-flow", []api.StepRef{"stuck"})
		as.NoError(err)

		_, err = env.Coordinator.Start(ctx, "stuck-flow", 1)
		as.NoError(err)

		err = env.Coordinator.Stop(50 * time.Millisecond)
		as.ErrorIs(err, engine.ErrShutdownTimeout)
	})
}
