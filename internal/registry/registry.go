// Package registry stores named workflow definitions. Reads vastly
// outnumber writes, so definitions are served from memory under a
// read-write lock and persisted through Redis so they survive restarts
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/flume/pkg/api"
)

// Registry provides define/get/snapshot over named workflow definitions
// with last-writer-wins overwrite semantics. A Snapshot call always
// observes a complete definition, never a partial write
type Registry struct {
	client    *redis.Client
	keyPrefix string
	workflows map[api.WorkflowID]*api.Workflow
	mu        sync.RWMutex
}

const workflowKeyPattern = "%s:workflow:%s"

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrPersistWorkflow  = errors.New("failed to persist workflow")
	ErrLoadWorkflows    = errors.New("failed to load workflows")
)

// New creates a registry backed by the provided Redis client, loading any
// previously persisted definitions
func New(
	ctx context.Context, client *redis.Client, prefix string,
) (*Registry, error) {
	r := &Registry{
		client:    client,
		keyPrefix: prefix,
		workflows: map[api.WorkflowID]*api.Workflow{},
	}
	if err := r.load(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadWorkflows, err)
	}
	return r, nil
}

// Define validates and stores (or overwrites) a workflow definition,
// returning the identifier it is stored under. Nothing is written when
// validation fails
func (r *Registry) Define(
	ctx context.Context, name string, steps []api.StepRef,
) (api.WorkflowID, error) {
	wf := &api.Workflow{
		Name:      name,
		Steps:     steps,
		DefinedAt: time.Now(),
	}
	if err := wf.Validate(); err != nil {
		return "", err
	}

	// stored definitions never alias the caller's slice
	wf.Steps = wf.Snapshot()
	id := wf.ID()

	data, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistWorkflow, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.workflowKey(id)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersistWorkflow, err)
	}
	r.workflows[id] = wf
	return id, nil
}

// Get returns the current definition stored under the given name
func (r *Registry) Get(
	_ context.Context, name string,
) (*api.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[api.WorkflowID(api.SanitizeID(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return wf, nil
}

// Snapshot returns an independent copy of the step list stored under the
// given name. Redefinition of the name never mutates a returned snapshot
func (r *Registry) Snapshot(
	ctx context.Context, name string,
) ([]api.StepRef, error) {
	wf, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return wf.Snapshot(), nil
}

// List returns all defined workflows ordered by name
func (r *Registry) List(_ context.Context) []*api.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*api.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		res = append(res, wf)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res
}

func (r *Registry) load(ctx context.Context) error {
	pattern := r.workflowKey("*")

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := r.loadOne(ctx, key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Registry) loadOne(ctx context.Context, key string) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var wf api.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return err
	}
	r.workflows[wf.ID()] = &wf
	return nil
}

func (r *Registry) workflowKey(id api.WorkflowID) string {
	return fmt.Sprintf(workflowKeyPattern, r.keyPrefix, id)
}
