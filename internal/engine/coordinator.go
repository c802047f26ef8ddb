// Package engine drives sequential workflow executions. Start allocates a
// pending record and returns immediately; a supervised goroutine then
// folds the data value across the step snapshot in order, persisting
// after every step and stopping at the first failure. Status reads the
// record at any point in the run
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/flume/internal/loader"
	"github.com/kode4food/flume/internal/registry"
	"github.com/kode4food/flume/internal/store"
	"github.com/kode4food/flume/pkg/api"
	"github.com/kode4food/flume/pkg/log"
)

type (
	// Coordinator orchestrates workflow executions
	Coordinator struct {
		registry *registry.Registry
		store    *store.Store
		loader   *loader.Loader
		archiver Archiver
		hub      *Hub
		ctx      context.Context
		cancel   context.CancelFunc
		wg       sync.WaitGroup
	}

	// Archiver receives terminal execution records for cold storage. A
	// nil Archiver disables archiving
	Archiver interface {
		Archive(ctx context.Context, rec *api.Execution) error
	}
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrShutdownTimeout   = errors.New("shutdown timed out")
	ErrTaskPanicked      = errors.New("step task panicked")
)

// New creates a coordinator over the provided collaborators. archiver may
// be nil
func New(
	reg *registry.Registry, st *store.Store, ld *loader.Loader,
	hub *Hub, archiver Archiver,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		registry: reg,
		store:    st,
		loader:   ld,
		archiver: archiver,
		hub:      hub,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start validates the workflow name, snapshots its step list, creates a
// pending execution record, and schedules the run. It returns the fresh
// execution ID without waiting for any step to execute. Failures that are
// detectable here (unknown workflow, store faults) surface synchronously
// and create no record
func (c *Coordinator) Start(
	ctx context.Context, workflowName string, input any,
) (api.ExecutionID, error) {
	steps, err := c.registry.Snapshot(ctx, workflowName)
	if err != nil {
		return "", err
	}

	id := api.NewExecutionID()
	rec := api.NewExecution(id, workflowName, steps, input)
	if err := c.store.Create(ctx, rec); err != nil {
		return "", err
	}

	c.wg.Add(1)
	go c.run(id)

	slog.Info("Execution scheduled",
		log.ExecutionID(id),
		log.Workflow(workflowName),
		slog.Int("steps", len(steps)))
	return id, nil
}

// Status returns the current record for an execution. Safe to call at
// any time, including while the run is still in progress
func (c *Coordinator) Status(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	return c.store.Get(ctx, id)
}

// Stop waits for in-flight executions to finish, up to the given
// timeout. Executions are never cancelled mid-step
func (c *Coordinator) Stop(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-time.After(timeout):
		c.cancel()
		return ErrShutdownTimeout
	}
}

// run drives one execution to a terminal state. A panic anywhere in the
// chain is routed into a failed record, so a crashed task can never
// vanish without updating status
func (c *Coordinator) run(id api.ExecutionID) {
	defer c.wg.Done()

	stepIndex := 0
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Execution panicked",
				log.ExecutionID(id),
				slog.Any("panic", r))
			c.fail(id, stepIndex, fmt.Errorf("%w: %v", ErrTaskPanicked, r))
		}
	}()

	rec, err := c.transition(id, api.ExecutionRunning)
	if err != nil {
		slog.Error("Failed to mark execution running",
			log.ExecutionID(id),
			log.Error(err))
		return
	}
	c.hub.Publish(EventExecutionStarted, rec)

	current := rec.Current
	for i, ref := range rec.Steps {
		stepIndex = i

		unit, err := c.loader.Resolve(ref)
		if err != nil {
			c.fail(id, i, err)
			return
		}

		result, err := unit.Apply(c.ctx, current)
		if err != nil {
			c.fail(id, i, err)
			return
		}

		current = result
		rec, err = c.store.Update(c.ctx, id,
			func(rec *api.Execution) (*api.Execution, error) {
				return rec.SetCurrent(result, i+1), nil
			},
		)
		if err != nil {
			slog.Error("Failed to persist step result",
				log.ExecutionID(id),
				log.StepIndex(i),
				log.Error(err))
			return
		}
		c.hub.Publish(EventStepCompleted, rec)
	}

	rec, err = c.transition(id, api.ExecutionSucceeded)
	if err != nil {
		slog.Error("Failed to mark execution succeeded",
			log.ExecutionID(id),
			log.Error(err))
		return
	}
	c.hub.Publish(EventExecutionSucceeded, rec)
	c.archive(rec)

	slog.Info("Execution succeeded",
		log.ExecutionID(id),
		log.Workflow(rec.Workflow),
		slog.Int("steps", len(rec.Steps)))
}

// fail records the first failure of an execution. Steps after the failing
// one never run; the data value produced so far stays on the record
func (c *Coordinator) fail(id api.ExecutionID, step int, cause error) {
	rec, err := c.update(id, api.ExecutionFailed,
		func(rec *api.Execution) *api.Execution {
			return rec.SetError(&api.StepError{
				Step:    step,
				Ref:     rec.Steps[step],
				Message: cause.Error(),
			})
		},
	)
	if err != nil {
		slog.Error("Failed to mark execution failed",
			log.ExecutionID(id),
			log.Error(err))
		return
	}
	c.hub.Publish(EventExecutionFailed, rec)
	c.archive(rec)

	slog.Warn("Execution failed",
		log.ExecutionID(id),
		log.Workflow(rec.Workflow),
		log.StepIndex(step),
		log.Error(cause))
}

func (c *Coordinator) transition(
	id api.ExecutionID, to api.ExecutionStatus,
) (*api.Execution, error) {
	return c.update(id, to, nil)
}

// update applies a monotonic status transition plus an optional extra
// mutation in a single persisted write
func (c *Coordinator) update(
	id api.ExecutionID, to api.ExecutionStatus,
	extra func(*api.Execution) *api.Execution,
) (*api.Execution, error) {
	return c.store.Update(c.ctx, id,
		func(rec *api.Execution) (*api.Execution, error) {
			if !rec.CanTransition(to) {
				return nil, fmt.Errorf("%w: %s -> %s",
					ErrInvalidTransition, rec.Status, to)
			}
			now := time.Now()
			res := rec.SetStatus(to)
			switch to {
			case api.ExecutionRunning:
				res = res.SetStartedAt(now)
			case api.ExecutionSucceeded, api.ExecutionFailed:
				res = res.SetFinishedAt(now)
			}
			if extra != nil {
				res = extra(res)
			}
			return res, nil
		},
	)
}

func (c *Coordinator) archive(rec *api.Execution) {
	if c.archiver == nil {
		return
	}
	if err := c.archiver.Archive(c.ctx, rec); err != nil {
		slog.Error("Failed to archive execution",
			log.ExecutionID(rec.ID),
			log.Error(err))
	}
}
