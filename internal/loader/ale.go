package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"
)

type (
	// AleEnv provides an Ale script execution environment. Step scripts
	// are wrapped as single-argument lambdas over the threaded data value
	AleEnv struct {
		env *env.Environment
	}

	aleTransform struct {
		proc data.Procedure
	}
)

const aleLambdaTemplate = "(lambda (data) %s)"

var (
	ErrAleNotProcedure = errors.New("not a procedure")
	ErrAleCompile      = errors.New("script compile error")
	ErrAleCall         = errors.New("error calling procedure")
)

// NewAleEnv creates a bootstrapped Ale script environment
func NewAleEnv() *AleEnv {
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleEnv{
		env: e,
	}
}

// Compile compiles an Ale step script into a reusable transform. The
// script sees the incoming value as `data` and evaluates to the next
// data value
func (e *AleEnv) Compile(ref, script string) (Transform, error) {
	src := fmt.Sprintf(aleLambdaTemplate, script)

	proc, err := catchPanic(ErrAleCompile,
		func() (data.Procedure, error) {
			ns := e.env.GetAnonymous()
			res, err := eval.String(ns, data.String(src))
			if err != nil {
				return nil, err
			}

			proc, ok := res.(data.Procedure)
			if !ok {
				return nil, fmt.Errorf(
					"%w, got: %T", ErrAleNotProcedure, res,
				)
			}
			return proc, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAleCompile, ref, err)
	}
	return &aleTransform{proc: proc}, nil
}

func (t *aleTransform) Apply(_ context.Context, value any) (any, error) {
	res, err := catchPanic(ErrAleCall,
		func() (ale.Value, error) {
			return t.proc.Call(jsonToAle(value)), nil
		},
	)
	if err != nil {
		return nil, err
	}
	return aleToJSON(res), nil
}

func jsonToAle(value any) ale.Value {
	switch v := value.(type) {
	case string:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case int:
		return data.Integer(v)
	case int64:
		return data.Integer(v)
	case float64:
		return data.Float(v)
	case []any:
		return jsonArrayToAle(v)
	case map[string]any:
		return jsonMapToAle(v)
	case nil:
		return data.Null
	default:
		return data.String(fmt.Sprintf("%v", v))
	}
}

func jsonArrayToAle(arr []any) data.Vector {
	vec := make(data.Vector, len(arr))
	for i, item := range arr {
		vec[i] = jsonToAle(item)
	}
	return vec
}

func jsonMapToAle(m map[string]any) *data.Object {
	obj := data.NewObject()
	for k, val := range m {
		pair := data.NewCons(data.Keyword(k), jsonToAle(val))
		obj = obj.Put(pair).(*data.Object)
	}
	return obj
}

func aleToJSON(value ale.Value) any {
	switch v := value.(type) {
	case data.Bool:
		return bool(v)
	case data.Keyword:
		return string(v)
	case data.Integer:
		return int(v)
	case data.Float:
		return float64(v)
	case data.Vector:
		return aleVectorToJSON(v)
	case *data.List:
		return aleListToJSON(v)
	case *data.Object:
		return aleObjectToJSON(v)
	default:
		return aleDefaultToJSON(value, v)
	}
}

func aleVectorToJSON(v data.Vector) []any {
	result := make([]any, len(v))
	for i, item := range v {
		result[i] = aleToJSON(item)
	}
	return result
}

func aleListToJSON(list *data.List) []any {
	var result []any
	for l := list; !l.IsEmpty(); {
		head, tail, ok := l.Split()
		if !ok {
			break
		}
		result = append(result, aleToJSON(head))
		l = tail.(*data.List)
	}
	return result
}

func aleObjectToJSON(obj *data.Object) map[string]any {
	result := map[string]any{}
	for _, pair := range obj.Pairs() {
		keyStr := fmt.Sprintf("%v", aleToJSON(pair.Car()))
		result[keyStr] = aleToJSON(pair.Cdr())
	}
	return result
}

func aleDefaultToJSON(value ale.Value, v any) any {
	if value == data.Null {
		return nil
	}
	return fmt.Sprintf("%v", v)
}

func catchPanic[T any](baseErr error, fn func() (T, error)) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if ok {
			err = e
			return
		}
		err = fmt.Errorf("%w: %v", baseErr, r)
	}()
	return fn()
}
