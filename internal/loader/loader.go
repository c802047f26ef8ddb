// Package loader resolves step references into callable transform units.
// A reference is resolved by shape: http(s) URLs become endpoint
// transforms, *.lua and *.ale paths become sandboxed script transforms
// loaded from the configured script root, and anything else is looked up
// among the programmatically registered native handlers. Resolution
// failures are distinct from runtime failures inside a transform
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kode4food/flume/pkg/api"
	"github.com/kode4food/flume/pkg/util"
)

type (
	// Transform is the loaded, callable artifact backing a step. Apply
	// consumes the threaded data value and produces its replacement. It
	// may block on I/O and must honor context cancellation where it does
	Transform interface {
		Apply(ctx context.Context, data any) (any, error)
	}

	// Handler adapts a plain function to the Transform contract
	Handler func(ctx context.Context, data any) (any, error)

	// Loader resolves and caches transform units by step reference
	Loader struct {
		lua        *LuaEnv
		ale        *AleEnv
		http       *HTTPInvoker
		cache      *util.LRUCache[Transform]
		scriptRoot string
		handlers   sync.Map // map[api.StepRef]Handler
	}
)

var (
	// ErrUnresolvableStep marks every resolution failure, as opposed to a
	// failure inside a resolved transform's Apply
	ErrUnresolvableStep = errors.New("unresolvable step reference")

	ErrScriptOutsideRoot = errors.New("script path escapes script root")
	ErrScriptRead        = errors.New("failed to read script")
	ErrHandlerNotFound   = errors.New("no handler registered")
)

// New creates a step loader rooted at scriptRoot, caching up to cacheSize
// resolved transforms. stepTimeout bounds individual HTTP step calls
func New(scriptRoot string, cacheSize int, stepTimeout time.Duration) *Loader {
	return &Loader{
		lua:        NewLuaEnv(),
		ale:        NewAleEnv(),
		http:       NewHTTPInvoker(stepTimeout),
		cache:      util.NewLRUCache[Transform](cacheSize),
		scriptRoot: scriptRoot,
	}
}

// RegisterHandler installs a native transform under the given reference.
// Handlers are only consulted for references that are neither URLs nor
// script paths
func (l *Loader) RegisterHandler(ref api.StepRef, h Handler) {
	l.handlers.Store(ref, h)
}

// Resolve locates the transform unit behind a step reference, caching by
// reference so repeated use does not repeat resolution
func (l *Loader) Resolve(ref api.StepRef) (Transform, error) {
	res, err := l.cache.Get(string(ref), func() (Transform, error) {
		return l.resolve(ref)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnresolvableStep, ref, err)
	}
	return res, nil
}

func (l *Loader) resolve(ref api.StepRef) (Transform, error) {
	s := string(ref)
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return l.http.Transform(s), nil
	case strings.HasSuffix(s, ".lua"):
		src, err := l.readScript(s)
		if err != nil {
			return nil, err
		}
		return l.lua.Compile(s, src)
	case strings.HasSuffix(s, ".ale"):
		src, err := l.readScript(s)
		if err != nil {
			return nil, err
		}
		return l.ale.Compile(s, src)
	default:
		if h, ok := l.handlers.Load(ref); ok {
			return handlerTransform(h.(Handler)), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, ref)
	}
}

func (l *Loader) readScript(ref string) (string, error) {
	root, err := filepath.Abs(l.scriptRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrScriptRead, err)
	}

	path := filepath.Join(root, filepath.FromSlash(ref))
	path = filepath.Clean(path)
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrScriptOutsideRoot, ref)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrScriptRead, err)
	}
	return string(src), nil
}

type handlerTransform Handler

func (h handlerTransform) Apply(ctx context.Context, data any) (any, error) {
	return h(ctx, data)
}
