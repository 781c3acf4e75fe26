package loader_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/modloader/internal/fetch"
	"github.com/seantiz/modloader/internal/loader"
	"github.com/seantiz/modloader/internal/model"
)

// manualHost queues posted tasks until the test drains them.
type manualHost struct {
	mu    sync.Mutex
	tasks []func()
}

func (h *manualHost) Post(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, fn)
}

func (h *manualHost) AfterFunc(_ time.Duration, fn func()) func() {
	cancelled := false
	h.Post(func() {
		if !cancelled {
			fn()
		}
	})
	return func() { cancelled = true }
}

func (h *manualHost) next() (func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tasks) == 0 {
		return nil, false
	}
	fn := h.tasks[0]
	h.tasks = h.tasks[1:]
	return fn, true
}

// harness wires a loader to in-memory resources. A resource is a Go script
// keyed by its URL; the fetched body is the URL itself and the evaluator runs
// the script registered for it.
type harness struct {
	t       *testing.T
	host    *manualHost
	l       *loader.Loader
	globals *loader.MapGlobals
	logs    *bytes.Buffer
	scripts map[string]func() error
	fetched []string
	evals   []string
	amd     map[string]bool
}

func newHarness(t *testing.T, opts loader.Options) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		host:    &manualHost{},
		globals: loader.NewMapGlobals(),
		logs:    &bytes.Buffer{},
		scripts: make(map[string]func() error),
		amd:     make(map[string]bool),
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "/res/"
	}
	opts.Logger = slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts.Globals = h.globals
	opts.Evaluator = h
	opts.SyncFetch = &fakeFetch{h: h}
	opts.AsyncFetch = &fakeFetch{h: h, async: true}
	h.l = loader.New(h.host, opts)
	return h
}

// serve registers script as the body behind url.
func (h *harness) serve(url string, script func() error) {
	h.scripts[url] = script
}

// serveDef serves a body that makes a single define call.
func (h *harness) serveDef(url string, def model.Definition) {
	h.serve(url, func() error {
		d := def
		h.l.Define(&d)
		return nil
	})
}

func (h *harness) Eval(name, url, source string, opts loader.EvalOptions) error {
	h.evals = append(h.evals, name)
	h.amd[name] = opts.AMD
	fn, ok := h.scripts[source]
	if !ok {
		return fmt.Errorf("no script for %q", source)
	}
	return fn()
}

// drain runs posted tasks until none are left.
func (h *harness) drain() {
	h.t.Helper()
	for i := 0; ; i++ {
		if i > 10000 {
			h.t.Fatal("host tasks did not settle")
		}
		fn, ok := h.host.next()
		if !ok {
			return
		}
		fn()
	}
}

// requireAsync runs an async require to completion.
func (h *harness) requireAsync(ids ...string) ([]any, error) {
	h.t.Helper()
	var (
		values []any
		err    error
		done   bool
	)
	h.l.Require(ids, func(v []any) { values, done = v, true }, func(e error) { err, done = e, true })
	h.drain()
	if !done {
		h.t.Fatalf("require %v never completed", ids)
	}
	return values, err
}

type fakeFetch struct {
	h     *harness
	async bool
}

func (f *fakeFetch) Fetch(req fetch.Request, done func(fetch.Response, error)) {
	f.h.fetched = append(f.h.fetched, req.URL)
	resp, err := f.h.get(req.URL)
	if f.async {
		f.h.host.Post(func() { done(resp, err) })
		return
	}
	done(resp, err)
}

func (h *harness) get(url string) (fetch.Response, error) {
	if _, ok := h.scripts[url]; !ok {
		return fetch.Response{URL: url, Status: 404}, &fetch.FetchError{URL: url, Status: 404}
	}
	return fetch.Response{URL: url, Status: 200, Body: []byte(url)}, nil
}

func value(v any) model.Definition {
	return model.Definition{Value: v}
}
