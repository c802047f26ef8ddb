package helpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flume/internal/engine"
	"github.com/kode4food/flume/internal/loader"
	"github.com/kode4food/flume/internal/registry"
	"github.com/kode4food/flume/internal/store"
)

// TestEnv holds all the components needed for engine testing, backed by
// an in-memory Redis
type TestEnv struct {
	Coordinator *engine.Coordinator
	Registry    *registry.Registry
	Store       *store.Store
	Loader      *loader.Loader
	Hub         *engine.Hub
	Redis       *miniredis.Miniredis
	Steps       *StepRecorder
	ScriptRoot  string
	Cleanup     func()
}

const (
	testKeyPrefix   = "test-flume"
	testCacheSize   = 100
	testStepTimeout = 5 * time.Second
	shutdownWait    = 2 * time.Second
)

// NewTestEnv creates a fully wired engine over miniredis, a temp script
// root, and the standard recorded test steps
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	server, err := miniredis.Run()
	assert.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})

	reg, err := registry.New(context.Background(), client, testKeyPrefix)
	assert.NoError(t, err)

	st := store.New(client, testKeyPrefix)

	scriptRoot := t.TempDir()
	ld := loader.New(scriptRoot, testCacheSize, testStepTimeout)

	rec := NewStepRecorder()
	RegisterTestSteps(ld, rec)

	hub := engine.NewHub()
	coord := engine.New(reg, st, ld, hub, nil)

	cleanup := func() {
		_ = coord.Stop(shutdownWait)
		hub.Close()
		_ = client.Close()
		server.Close()
	}

	return &TestEnv{
		Coordinator: coord,
		Registry:    reg,
		Store:       st,
		Loader:      ld,
		Hub:         hub,
		Redis:       server,
		Steps:       rec,
		ScriptRoot:  scriptRoot,
		Cleanup:     cleanup,
	}
}

// WriteScript drops a step script into the environment's script root and
// returns its reference
func (e *TestEnv) WriteScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(e.ScriptRoot, name)
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	assert.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return name
}

// WithEnv creates a test environment, executes the provided function with
// it, and ensures cleanup happens automatically
func WithEnv(t *testing.T, fn func(*TestEnv)) {
	t.Helper()
	env := NewTestEnv(t)
	defer env.Cleanup()
	fn(env)
}

// WithCoordinator creates a test environment and executes the provided
// function with just its coordinator
func WithCoordinator(t *testing.T, fn func(*engine.Coordinator)) {
	t.Helper()
	WithEnv(t, func(env *TestEnv) {
		fn(env.Coordinator)
	})
}
