package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kode4food/flume/internal/loader"
	"github.com/kode4food/flume/pkg/api"
)

// StepRecorder tracks how often each registered test step was invoked and
// the data values it received, so tests can verify ordering, threading,
// and short-circuiting
type StepRecorder struct {
	counts sync.Map // map[api.StepRef]*atomic.Int64
	inputs sync.Map // map[api.StepRef]*recordedInputs
}

type recordedInputs struct {
	values []any
	mu     sync.Mutex
}

var ErrBoom = errors.New("boom")

// NewStepRecorder creates an empty step recorder
func NewStepRecorder() *StepRecorder {
	return &StepRecorder{}
}

// Count returns the number of invocations recorded for a step
func (r *StepRecorder) Count(ref api.StepRef) int {
	if c, ok := r.counts.Load(ref); ok {
		return int(c.(*atomic.Int64).Load())
	}
	return 0
}

// Inputs returns the data values a step received, in invocation order
func (r *StepRecorder) Inputs(ref api.StepRef) []any {
	if in, ok := r.inputs.Load(ref); ok {
		rec := in.(*recordedInputs)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return append([]any{}, rec.values...)
	}
	return nil
}

func (r *StepRecorder) record(ref api.StepRef, data any) {
	c, _ := r.counts.LoadOrStore(ref, &atomic.Int64{})
	c.(*atomic.Int64).Add(1)

	in, _ := r.inputs.LoadOrStore(ref, &recordedInputs{})
	rec := in.(*recordedInputs)
	rec.mu.Lock()
	rec.values = append(rec.values, data)
	rec.mu.Unlock()
}

// Wrap decorates a handler so invocations are recorded under ref
func (r *StepRecorder) Wrap(ref api.StepRef, h loader.Handler) loader.Handler {
	return func(ctx context.Context, data any) (any, error) {
		r.record(ref, data)
		return h(ctx, data)
	}
}

// RegisterTestSteps installs the standard set of recorded native steps
// used throughout the engine tests
func RegisterTestSteps(ld *loader.Loader, rec *StepRecorder) {
	steps := map[api.StepRef]loader.Handler{
		"double": func(_ context.Context, data any) (any, error) {
			return mapNumber(data, func(n float64) float64 {
				return n * 2
			})
		},
		"add1": func(_ context.Context, data any) (any, error) {
			return mapNumber(data, func(n float64) float64 {
				return n + 1
			})
		},
		"identity": func(_ context.Context, data any) (any, error) {
			return data, nil
		},
		"boom": func(_ context.Context, _ any) (any, error) {
			return nil, ErrBoom
		},
		"panic": func(_ context.Context, _ any) (any, error) {
			panic("transform exploded")
		},
	}
	for ref, h := range steps {
		ld.RegisterHandler(ref, rec.Wrap(ref, h))
	}
}

// mapNumber applies fn across the numeric types a JSON data value can
// arrive as, preserving int-ness for int inputs
func mapNumber(data any, fn func(float64) float64) (any, error) {
	switch v := data.(type) {
	case int:
		return int(fn(float64(v))), nil
	case int64:
		return int64(fn(float64(v))), nil
	case float64:
		return fn(v), nil
	default:
		return nil, fmt.Errorf("not a number: %v (%T)", data, data)
	}
}
