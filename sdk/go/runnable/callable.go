// Package runnable turns plain functions into traced, composable graph nodes.
package runnable

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"strings"
)

// ErrNilFunc is returned by NewE when no function is given.
var ErrNilFunc = errors.New("runnable: nil func")

// ErrAbandoned closes a run whose function exited without returning,
// e.g. through runtime.Goexit.
var ErrAbandoned = errors.New("runnable: run abandoned")

// Runnable is anything that can be invoked as a node of a graph.
type Runnable[I, O any] interface {
	Invoke(ctx context.Context, input I, opts *Config) (O, error)
}

// Func is the shape of a function wrapped by a Callable.
type Func[I, O any] func(ctx context.Context, input I, cfg *Config) (O, error)

// RunnableFunc adapts a plain function to Runnable without any tracing.
type RunnableFunc[I, O any] func(ctx context.Context, input I, opts *Config) (O, error)

// Invoke implements Runnable.
func (f RunnableFunc[I, O]) Invoke(ctx context.Context, input I, opts *Config) (O, error) {
	return f(ctx, input, opts)
}

// Option configures a Callable.
type Option func(*callableOptions)

type callableOptions struct {
	name    string
	tags    []string
	trace   bool
	recurse bool
}

// WithName names the node. Defaults to the wrapped function's name.
func WithName(name string) Option {
	return func(o *callableOptions) { o.name = name }
}

// WithTags bakes tags into the node's configuration.
func WithTags(tags ...string) Option {
	return func(o *callableOptions) { o.tags = append(o.tags, tags...) }
}

// WithTrace toggles span creation and ambient config installation. On by default.
func WithTrace(enabled bool) Option {
	return func(o *callableOptions) { o.trace = enabled }
}

// WithRecurse toggles auto-delegation to a returned Runnable. On by default.
func WithRecurse(enabled bool) Option {
	return func(o *callableOptions) { o.recurse = enabled }
}

// Callable wraps a Func as a Runnable. It is immutable once built and safe
// for concurrent Invoke calls.
type Callable[I, O any] struct {
	name    string
	fn      Func[I, O]
	config  *Config
	trace   bool
	recurse bool
}

// New wraps fn. It panics if fn is nil; use NewE to get an error instead.
func New[I, O any](fn Func[I, O], opts ...Option) *Callable[I, O] {
	c, err := NewE(fn, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewE wraps fn, returning ErrNilFunc if fn is nil.
func NewE[I, O any](fn Func[I, O], opts ...Option) (*Callable[I, O], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	o := callableOptions{trace: true, recurse: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = funcName(fn)
	}
	var cfg *Config
	if len(o.tags) > 0 {
		cfg = &Config{Tags: o.tags}
	}
	return &Callable[I, O]{
		name:    o.name,
		fn:      fn,
		config:  cfg,
		trace:   o.trace,
		recurse: o.recurse,
	}, nil
}

// Name returns the node name.
func (c *Callable[I, O]) Name() string { return c.name }

// Tags returns the baked-in tags.
func (c *Callable[I, O]) Tags() []string {
	if c.config == nil {
		return nil
	}
	return cloneTags(c.config.Tags)
}

// Invoke runs the wrapped function with the node's configuration merged
// under opts. When the function returns another Runnable and recursion is
// on, that Runnable is invoked with the original input and opts and its
// result is returned instead.
func (c *Callable[I, O]) Invoke(ctx context.Context, input I, opts *Config) (O, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := Merge(c.config, opts)

	var (
		out O
		err error
	)
	if c.trace {
		out, err = c.tracedInvoke(ctx, input, cfg)
	} else {
		out, err = c.fn(ctx, input, cfg)
	}
	if err != nil {
		return out, err
	}

	if c.recurse {
		if next, ok := any(out).(Runnable[I, O]); ok && !isNil(next) {
			return next.Invoke(ctx, input, opts)
		}
	}
	return out, nil
}

func (c *Callable[I, O]) tracedInvoke(ctx context.Context, input I, cfg *Config) (out O, err error) {
	manager := cfg.Callbacks
	if manager == nil {
		if ambient, ok := ConfigFromContext(ctx); ok && ambient.Callbacks != nil {
			manager = ambient.Callbacks
		} else {
			manager = DefaultCallbackManager()
		}
	}

	name := c.name
	if cfg.RunName != "" {
		name = cfg.RunName
	}
	runCtx, run := manager.StartRun(ctx, name, input, cfg)
	finished := false
	defer func() {
		if finished {
			return
		}
		// Reached on panic or runtime.Goexit; the run must still be closed.
		r := recover()
		if r != nil {
			run.Fail(&PanicError{Value: r})
			panic(r)
		}
		run.Fail(ErrAbandoned)
	}()

	child := Patch(cfg, Config{Callbacks: run.Child()})
	out, err = RunWithConfig(runCtx, child, func(ctx context.Context) (O, error) {
		return c.fn(ctx, input, child)
	})
	finished = true
	if err != nil {
		run.Fail(err)
		return out, err
	}
	run.End(out)
	return out, nil
}

func funcName(fn any) string {
	full := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		full = full[i+1:]
	}
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		full = full[i+1:]
	}
	return strings.TrimSuffix(full, "-fm")
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
