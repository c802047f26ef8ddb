// Package store persists execution records in Redis, keyed by execution
// ID. Exactly one background task ever mutates a given record, while any
// number of status queries may read it concurrently
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/flume/pkg/api"
)

type (
	// Store is the execution record store
	Store struct {
		client    *redis.Client
		keyPrefix string
	}

	// Mutator transforms an execution record into its next state. It must
	// not mutate its argument; the record's copy-on-write setters return
	// fresh values
	Mutator func(*api.Execution) (*api.Execution, error)
)

const executionKeyPattern = "%s:execution:%s"

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrExecutionExists   = errors.New("execution already exists")
	ErrPersistExecution  = errors.New("failed to persist execution")
)

// New creates an execution store backed by the provided Redis client
func New(client *redis.Client, prefix string) *Store {
	return &Store{
		client:    client,
		keyPrefix: prefix,
	}
}

// Create persists a freshly allocated execution record. Execution IDs are
// never reused, so an existing key is a fault
func (s *Store) Create(ctx context.Context, rec *api.Execution) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistExecution, err)
	}

	ok, err := s.client.SetNX(ctx, s.executionKey(rec.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistExecution, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionExists, rec.ID)
	}
	return nil
}

// Get returns the record currently stored under the given execution ID
func (s *Store) Get(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	data, err := s.client.Get(ctx, s.executionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var rec api.Execution
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update applies the mutator to the stored record and persists the
// result, returning the new record. Safe without locking because only the
// task owning the execution ever calls it for a given ID
func (s *Store) Update(
	ctx context.Context, id api.ExecutionID, mutate Mutator,
) (*api.Execution, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := mutate(rec)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistExecution, err)
	}
	err = s.client.Set(ctx, s.executionKey(id), data, 0).Err()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistExecution, err)
	}
	return next, nil
}

func (s *Store) executionKey(id api.ExecutionID) string {
	return fmt.Sprintf(executionKeyPattern, s.keyPrefix, id)
}
