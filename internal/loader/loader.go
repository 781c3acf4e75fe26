package loader

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/seantiz/modloader/internal/fetch"
	"github.com/seantiz/modloader/internal/model"
	"github.com/seantiz/modloader/internal/naming"
	"github.com/seantiz/modloader/internal/registry"
	"github.com/seantiz/modloader/internal/scheduler"
)

// Host is the single-threaded environment the loader runs in.
type Host interface {
	// Post runs fn in a new task on the loader's goroutine. It may be called
	// from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the loader's goroutine after d.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// EvalOptions describe how a body is evaluated.
type EvalOptions struct {
	// AMD exposes define.amd while the body runs.
	AMD bool
}

// Evaluator runs module source text. Define calls made while the source runs
// must reach Loader.Define.
type Evaluator interface {
	Eval(name, url, source string, opts EvalOptions) error
}

// GlobalResolver reads and writes dotted global paths such as "app.util.X".
type GlobalResolver interface {
	Get(path string) any
	Set(path string, v any)
}

// Options configure a Loader. The zero value is usable once a Host is given.
type Options struct {
	// Debug loads "-dbg" variants first.
	Debug bool
	// StrictDefine fails the requesting module when a second anonymous
	// definition has no name to adopt. When false the definition gets a
	// synthesized name and a warning is logged.
	StrictDefine bool
	// AllowReexecution permits a definition of an already settled module to
	// run its factory again.
	AllowReexecution bool
	// DevAssertions panics on invalid transitions and double settlement
	// instead of logging them.
	DevAssertions bool
	// TaskBudget limits back-to-back async module execution per host task.
	// Negative runs everything inline; zero gives every execution its own task.
	TaskBudget time.Duration
	// BaseURL is the URL of the empty resource prefix.
	BaseURL string

	// Translate rewrites source text before evaluation.
	Translate func(name, url, source string) (string, error)
	// OnFetch is called once per fetch attempt.
	OnFetch func(mode, url, module string)
	// NewExports creates the object handed to factories requesting "exports".
	NewExports func() any

	Logger    *slog.Logger
	Registry  registry.Registry
	Globals   GlobalResolver
	Evaluator Evaluator
	Getter    fetch.Getter
	Recorder  fetch.Recorder
	// SyncFetch and AsyncFetch replace the strategies built from Getter.
	SyncFetch  fetch.Strategy
	AsyncFetch fetch.Strategy
	// Context bounds fetches; nil means context.Background.
	Context context.Context
}

// Shim adapts a module that does not call define.
type Shim struct {
	// Deps are required before the module itself is loaded.
	Deps []string `json:"deps,omitempty"`
	// Exports names the global whose value becomes the module export. Only
	// the first entry is used.
	Exports []string `json:"exports,omitempty"`
	// AMD leaves define.amd visible while the module body runs.
	AMD bool `json:"amd,omitempty"`
}

// Loader is the module loader engine.
type Loader struct {
	opts    Options
	host    Host
	logger  *slog.Logger
	reg     registry.Registry
	names   *naming.Resolver
	globals GlobalResolver
	eval    Evaluator
	sched   *scheduler.Scheduler
	broker  *Broker

	syncFetch  fetch.Strategy
	asyncFetch fetch.Strategy

	shims    map[string]Shim
	bundles  map[string]string
	depCache map[string][]string
	sizes    map[string]int

	// scheduled holds factory continuations waiting in the scheduler.
	scheduled map[*model.Module]func()

	// queue collects define calls made while a module body runs; root
	// collects the rest and is flushed by a zero-delay timer.
	queue       *definitionQueue
	root        *definitionQueue
	cancelFlush func()
}

// New creates a loader running on host.
func New(host Host, opts Options) *Loader {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Globals == nil {
		opts.Globals = NewMapGlobals()
	}
	if opts.NewExports == nil {
		opts.NewExports = func() any { return map[string]any{} }
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Getter == nil {
		opts.Getter = fetch.NewDefaultRegistry(".")
	}
	l := &Loader{
		opts:     opts,
		host:     host,
		logger:   opts.Logger,
		reg:      opts.Registry,
		names:    naming.NewResolver(opts.BaseURL),
		globals:  opts.Globals,
		eval:     opts.Evaluator,
		sched:    scheduler.New(opts.TaskBudget, host),
		broker:   NewBroker(),
		shims:    make(map[string]Shim),
		bundles:  make(map[string]string),
		depCache: make(map[string][]string),
		sizes:    make(map[string]int),

		scheduled: make(map[*model.Module]func()),
		root:     &definitionQueue{},
	}
	l.syncFetch = opts.SyncFetch
	if l.syncFetch == nil {
		l.syncFetch = &fetch.Sync{Getter: opts.Getter, Recorder: opts.Recorder, Context: opts.Context}
	}
	l.asyncFetch = opts.AsyncFetch
	if l.asyncFetch == nil {
		l.asyncFetch = fetch.NewAsync(opts.Context, opts.Getter, host, opts.Recorder)
	}
	return l
}

// Broker returns the transition event broker.
func (l *Loader) Broker() *Broker {
	return l.broker
}

// Subscribe returns a channel of module transition events.
func (l *Loader) Subscribe() (<-chan Event, func()) {
	return l.broker.Subscribe()
}

// Define declares a module. Definitions made while a module body runs are
// matched against that module when the body finishes; all others are
// processed by a zero-delay timer.
func (l *Loader) Define(def *model.Definition) {
	if def.Name != "" {
		def.Name = qualify(def.Name)
		if m := l.reg.Create(def.Name); m.State() == model.StateUnresolved {
			// Keep requests arriving before the flush from fetching it.
			l.transition(m, model.StateExecuting)
		}
	}
	if l.queue != nil {
		l.queue.push(def)
		return
	}
	l.root.push(def)
	if l.cancelFlush == nil {
		l.cancelFlush = l.host.AfterFunc(0, l.flushRoot)
	}
}

func (l *Loader) flushRoot() {
	l.cancelFlush = nil
	l.sched.MarkTaskStart()
	q := l.root
	l.root = &definitionQueue{}
	l.processQueue(q, nil, true)
}

// Require loads ids asynchronously. onOK receives the exports in the order of
// ids; onErr receives the first failure. Both run in a later host task. A
// failure without onErr is logged as unhandled.
func (l *Loader) Require(ids []string, onOK func([]any), onErr func(error)) *model.Future {
	return l.requireFrom(nil, ids, onOK, onErr)
}

func (l *Loader) requireFrom(base *model.Module, ids []string, onOK func([]any), onErr func(error)) *model.Future {
	f := l.requireAll(base, ids, true)
	f.Then(func(v any, err error) {
		l.post(func() {
			switch {
			case err != nil && onErr != nil:
				onErr(err)
			case err != nil:
				unhandledFailuresTotal.Inc()
				l.logger.Error("unhandled module failure", "modules", ids, "error", err)
			case onOK != nil:
				onOK(v.([]any))
			}
		})
	})
	return f
}

// Probe returns the export of id if it is ready, else nil. It never loads.
func (l *Loader) Probe(id string) any {
	name, err := l.normalize(id, "")
	if err != nil {
		return nil
	}
	m, ok := l.reg.Get(name)
	if !ok {
		return nil
	}
	return l.value(m)
}

// RequireSync loads id and everything it needs on the calling stack and
// returns its export.
func (l *Loader) RequireSync(id string) (any, error) {
	return l.requireSyncFrom(nil, id)
}

func (l *Loader) requireSyncFrom(base *model.Module, id string) (any, error) {
	baseName := ""
	if base != nil {
		baseName = base.Name
	}
	name, err := l.normalize(id, baseName)
	if err != nil {
		return nil, err
	}
	if base != nil {
		base.AddPending(name)
	}
	return l.requireModule(base, name, false, false, false).Result()
}

// ToURL returns the URL of a resource name or module ID. No extension is
// added.
func (l *Loader) ToURL(id string) (string, error) {
	return l.toURL(id, "")
}

func (l *Loader) toURL(id, base string) (string, error) {
	name, err := naming.Resolve(id, base)
	if err != nil {
		return "", err
	}
	return l.names.ToURL(l.names.Map(name, stripJS(base))), nil
}

// GetModuleState returns the state of id, UNRESOLVED if it was never seen.
func (l *Loader) GetModuleState(id string) model.State {
	name, err := l.normalize(id, "")
	if err != nil {
		return model.StateUnresolved
	}
	if m, ok := l.reg.Get(name); ok {
		return m.State()
	}
	return model.StateUnresolved
}

// normalize turns a requested ID into a resource name: resolve relative
// segments against base, apply maps, add the .js extension.
func (l *Loader) normalize(id, base string) (string, error) {
	resolved, err := naming.Resolve(stripJS(id), base)
	if err != nil {
		return "", err
	}
	return qualify(l.names.Map(resolved, stripJS(base))), nil
}

// BeginTask marks the start of a host task that did not come from the
// loader itself, such as a call marshalled onto the loop. Scheduled work
// measures its budget from here.
func (l *Loader) BeginTask() {
	l.sched.MarkTaskStart()
}

// post runs fn in a new host task that starts a fresh scheduler window.
func (l *Loader) post(fn func()) {
	l.host.Post(func() {
		l.sched.MarkTaskStart()
		fn()
	})
}

func qualify(name string) string {
	if strings.HasSuffix(name, ".js") {
		return name
	}
	return name + ".js"
}

func stripJS(name string) string {
	return strings.TrimSuffix(name, ".js")
}

// splitExt splits a resource name into stem and extension.
func splitExt(name string) (string, string) {
	slash := strings.LastIndexByte(name, '/')
	if dot := strings.LastIndexByte(name, '.'); dot > slash {
		return name[:dot], name[dot:]
	}
	return name, ""
}
