package jsrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("runtime closed")

// Runtime is a running event loop with a loader and the JS bindings
// installed. It is safe for concurrent use.
type Runtime struct {
	loop   *eventloop.EventLoop
	loader *loader.Loader
	logger *slog.Logger

	// vm is only touched on the loop goroutine.
	vm *goja.Runtime

	closeOnce sync.Once
	done      chan struct{}
}

// New starts an event loop and creates a loader on it. The Evaluator, Globals
// and NewExports fields of opts are provided by the runtime.
func New(opts loader.Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r := &Runtime{
		loop:   eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		logger: opts.Logger,
		done:   make(chan struct{}),
	}
	opts.Evaluator = r
	opts.Globals = &globals{r: r}
	opts.NewExports = func() any { return r.vm.NewObject() }
	r.loader = loader.New(loopHost{r.loop}, opts)

	r.loop.Start()
	err := r.Do(func(vm *goja.Runtime) error {
		r.vm = vm
		return r.install()
	})
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("install bindings: %w", err)
	}
	return r, nil
}

// Close stops the event loop. Pending requests are abandoned.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.loop.Stop()
	})
}

// Do runs fn on the loop goroutine and waits for it. It must not be called
// from the loop itself.
func (r *Runtime) Do(fn func(vm *goja.Runtime) error) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	errc := make(chan error, 1)
	r.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("panic on event loop: %v", p)
			}
		}()
		r.loader.BeginTask()
		errc <- fn(vm)
	})
	select {
	case err := <-errc:
		return err
	case <-r.done:
		return ErrClosed
	}
}

// WithLoader runs fn on the loop with direct access to the loader.
func (r *Runtime) WithLoader(fn func(l *loader.Loader) error) error {
	return r.Do(func(*goja.Runtime) error { return fn(r.loader) })
}

// Loader returns the loader. Its methods may only be called on the loop,
// e.g. from within WithLoader.
func (r *Runtime) Loader() *loader.Loader { return r.loader }

// RunScript evaluates top-level script text. Definitions it makes are
// processed by the root queue.
func (r *Runtime) RunScript(name, source string) error {
	return r.Do(func(vm *goja.Runtime) error {
		_, err := vm.RunScript(name, source)
		return err
	})
}

// Require loads ids asynchronously and waits for their exports, converted
// to Go values.
func (r *Runtime) Require(ctx context.Context, ids ...string) ([]any, error) {
	type result struct {
		values []any
		err    error
	}
	res := make(chan result, 1)
	err := r.Do(func(*goja.Runtime) error {
		r.loader.Require(ids, func(values []any) {
			out := make([]any, len(values))
			for i, v := range values {
				out[i] = export(v)
			}
			res <- result{values: out}
		}, func(err error) {
			res <- result{err: err}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case out := <-res:
		return out.values, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrClosed
	}
}

// RequireSync loads id on the loop, blocking it until the module and its
// dependencies are ready.
func (r *Runtime) RequireSync(id string) (any, error) {
	var v any
	err := r.Do(func(*goja.Runtime) error {
		got, err := r.loader.RequireSync(id)
		v = export(got)
		return err
	})
	return v, err
}

// Dump returns the registry entries at or above threshold.
func (r *Runtime) Dump(threshold model.State) []loader.ModuleInfo {
	var out []loader.ModuleInfo
	_ = r.Do(func(*goja.Runtime) error {
		out = r.loader.Dump(threshold)
		return nil
	})
	return out
}

// Module describes one registry entry.
func (r *Runtime) Module(id string) (loader.ModuleInfo, bool) {
	var (
		info loader.ModuleInfo
		ok   bool
	)
	_ = r.Do(func(*goja.Runtime) error {
		info, ok = r.loader.Module(id)
		return nil
	})
	return info, ok
}

// Evict forgets id so the next request loads it again.
func (r *Runtime) Evict(id string) bool {
	var ok bool
	_ = r.Do(func(*goja.Runtime) error {
		ok = r.loader.Evict(id)
		return nil
	})
	return ok
}

// EvictBundle forgets a bundle and every module delivered with it.
func (r *Runtime) EvictBundle(bundle string) int {
	var n int
	_ = r.Do(func(*goja.Runtime) error {
		n = r.loader.EvictBundle(bundle)
		return nil
	})
	return n
}

// Preload hands over module bodies without fetching them.
func (r *Runtime) Preload(p model.Preload, group string) int {
	var n int
	_ = r.Do(func(*goja.Runtime) error {
		n = r.loader.Preload(p, group)
		return nil
	})
	return n
}

// Reset returns a failed module to the unresolved state.
func (r *Runtime) Reset(id string) error {
	return r.WithLoader(func(l *loader.Loader) error { return l.Reset(id) })
}

// Subscribe returns a channel of module transition events.
func (r *Runtime) Subscribe() (<-chan loader.Event, func()) {
	return r.loader.Subscribe()
}

// loopHost runs loader tasks on the event loop.
type loopHost struct {
	loop *eventloop.EventLoop
}

func (h loopHost) Post(fn func()) {
	h.loop.RunOnLoop(func(*goja.Runtime) { fn() })
}

func (h loopHost) AfterFunc(d time.Duration, fn func()) func() {
	t := h.loop.SetTimeout(func(*goja.Runtime) { fn() }, d)
	return func() { h.loop.ClearTimeout(t) }
}

// export converts a loader value to a plain Go value.
func export(v any) any {
	if jv, ok := v.(goja.Value); ok {
		if goja.IsUndefined(jv) || goja.IsNull(jv) {
			return nil
		}
		return jv.Export()
	}
	return v
}
