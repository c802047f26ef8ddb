package loader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flume/internal/loader"
)

func newLoader(t *testing.T) (*loader.Loader, string) {
	t.Helper()
	root := t.TempDir()
	return loader.New(root, 64, 5*time.Second), root
}

func writeScript(t *testing.T, root, name, src string) {
	t.Helper()
	path := filepath.Join(root, name)
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	assert.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func TestResolveHandler(t *testing.T) {
	ld, _ := newLoader(t)
	ld.RegisterHandler("double",
		func(_ context.Context, data any) (any, error) {
			return data.(int) * 2, nil
		})

	tr, err := ld.Resolve("double")
	assert.NoError(t, err)

	res, err := tr.Apply(context.Background(), 21)
	assert.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestResolveUnknown(t *testing.T) {
	ld, _ := newLoader(t)

	_, err := ld.Resolve("missing")
	assert.ErrorIs(t, err, loader.ErrUnresolvableStep)
	assert.ErrorIs(t, err, loader.ErrHandlerNotFound)
}

func TestResolveCaching(t *testing.T) {
	ld, _ := newLoader(t)
	ld.RegisterHandler("step",
		func(_ context.Context, data any) (any, error) {
			return data, nil
		})

	first, err := ld.Resolve("step")
	assert.NoError(t, err)
	second, err := ld.Resolve("step")
	assert.NoError(t, err)
	assert.Same(t, first, second)
}

func TestHandlerFailureIsNotLoadError(t *testing.T) {
	errBoom := errors.New("boom")
	ld, _ := newLoader(t)
	ld.RegisterHandler("boom",
		func(context.Context, any) (any, error) {
			return nil, errBoom
		})

	tr, err := ld.Resolve("boom")
	assert.NoError(t, err)

	_, err = tr.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, loader.ErrUnresolvableStep)
}

func TestResolveLuaScript(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "double.lua", "return data * 2")

	tr, err := ld.Resolve("double.lua")
	assert.NoError(t, err)

	res, err := tr.Apply(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, 10, res)
}

func TestLuaMapTransform(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "tag.lua",
		"return { value = data.value, tagged = true }")

	tr, err := ld.Resolve("tag.lua")
	assert.NoError(t, err)

	res, err := tr.Apply(
		context.Background(), map[string]any{"value": 7},
	)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"value": 7, "tagged": true}, res)
}

func TestLuaSyntaxError(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "broken.lua", "return ((")

	_, err := ld.Resolve("broken.lua")
	assert.ErrorIs(t, err, loader.ErrUnresolvableStep)
	assert.ErrorIs(t, err, loader.ErrLuaLoad)
}

func TestLuaRuntimeError(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "crash.lua", `error("kaboom")`)

	tr, err := ld.Resolve("crash.lua")
	assert.NoError(t, err)

	_, err = tr.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, loader.ErrLuaExecution)
}

func TestLuaSandbox(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "escape.lua", `return os.getenv("HOME")`)

	tr, err := ld.Resolve("escape.lua")
	assert.NoError(t, err)

	_, err = tr.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, loader.ErrLuaExecution)
}

func TestResolveAleScript(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "double.ale", "(* data 2)")

	tr, err := ld.Resolve("double.ale")
	assert.NoError(t, err)

	res, err := tr.Apply(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, 10, res)
}

func TestAleCompileError(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "broken.ale", "(* data")

	_, err := ld.Resolve("broken.ale")
	assert.ErrorIs(t, err, loader.ErrUnresolvableStep)
}

func TestScriptMissing(t *testing.T) {
	ld, _ := newLoader(t)

	_, err := ld.Resolve("nope.lua")
	assert.ErrorIs(t, err, loader.ErrUnresolvableStep)
	assert.ErrorIs(t, err, loader.ErrScriptRead)
}

func TestScriptEscapesRoot(t *testing.T) {
	ld, _ := newLoader(t)

	_, err := ld.Resolve("../../etc/passwd.lua")
	assert.ErrorIs(t, err, loader.ErrUnresolvableStep)
	assert.ErrorIs(t, err, loader.ErrScriptOutsideRoot)
}

func TestScriptInSubdirectory(t *testing.T) {
	ld, root := newLoader(t)
	writeScript(t, root, "math/add1.lua", "return data + 1")

	tr, err := ld.Resolve("math/add1.lua")
	assert.NoError(t, err)

	res, err := tr.Apply(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, 6, res)
}
