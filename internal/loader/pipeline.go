package loader

import (
	"fmt"
	"strings"

	"github.com/seantiz/modloader/internal/fetch"
	"github.com/seantiz/modloader/internal/model"
)

// debugVariant is the suffix of the unminified variant of a module.
const debugVariant = "-dbg"

// loadSync fetches the body of m on the calling stack, trying the debug
// variant first in debug mode, and executes it.
func (l *Loader) loadSync(m *model.Module) {
	stem, ext := splitExt(m.Name)
	variants := []string{""}
	if l.opts.Debug {
		variants = []string{debugVariant, ""}
	}

	var (
		body    []byte
		lastErr error
		loaded  bool
	)
	for _, v := range variants {
		m.URL = l.names.ToURL(stem + v + ext)
		l.notifyFetch(fetch.ModeSync, m.URL, m.Name)
		l.syncFetch.Fetch(fetch.Request{Module: m.Name, URL: m.URL}, func(resp fetch.Response, err error) {
			body, lastErr = resp.Body, err
		})
		if lastErr == nil {
			loaded = true
			break
		}
		l.logger.Debug("sync load attempt failed", "module", m.Name, "url", m.URL, "error", lastErr)
	}
	if !loaded {
		l.failWith(m, tmplLoad, lastErr)
		return
	}

	l.sizes[m.Name] = len(body)
	m.Data = model.Source(body)
	l.transition(m, model.StateFetched)
	l.execModule(m, false)
}

// loadAsync starts the background fetch of m. In debug mode the debug
// variant is tried first and the plain one once as a fallback.
func (l *Loader) loadAsync(m *model.Module) {
	stem, ext := splitExt(m.Name)
	primary, alternate := l.names.ToURL(stem+ext), ""
	if l.opts.Debug {
		primary, alternate = l.names.ToURL(stem+debugVariant+ext), primary
	}
	l.prefetch(m)
	l.fetchScript(m, primary, alternate)
}

// prefetch requests the known dependencies of m before its body declares them.
func (l *Loader) prefetch(m *model.Module) {
	deps, ok := l.depCache[m.Name]
	if !ok || len(deps) == 0 {
		return
	}
	l.logger.Debug("prefetching cached dependencies", "module", m.Name, "deps", deps)
	l.requireAll(m, deps, true).Then(func(_ any, err error) {
		if err != nil {
			l.logger.Debug("dependency prefetch failed", "module", m.Name, "error", err)
		}
	})
}

func (l *Loader) fetchScript(m *model.Module, url, alternate string) {
	m.URL = url
	l.notifyFetch(fetch.ModeAsync, url, m.Name)
	l.asyncFetch.Fetch(fetch.Request{Module: m.Name, URL: url, Async: true}, func(resp fetch.Response, err error) {
		// Responses arrive in a host task of their own.
		l.sched.MarkTaskStart()
		if cur, ok := l.reg.Get(m.Name); !ok || cur != m {
			l.logger.Debug("discarding response for evicted module", "module", m.Name, "url", url)
			return
		}
		if m.State() != model.StateFetching || !m.Async || m.URL != url {
			// A sync load took over while this fetch was in flight.
			l.logger.Debug("discarding stale async response", "module", m.Name, "url", url, "state", m.State())
			return
		}
		if err != nil {
			if alternate != "" {
				l.logger.Warn("async load failed, retrying", "module", m.Name, "url", url, "retry_url", alternate, "error", err)
				l.fetchScript(m, alternate, "")
				return
			}
			l.failWith(m, tmplLoad, fmt.Errorf("%w: %w", ErrScriptLoad, err))
			return
		}

		l.sizes[m.Name] = len(resp.Body)
		m.Data = model.Source(resp.Body)
		l.transition(m, model.StateFetched)
		l.sched.Run(func() {
			// A sync request may have executed it already.
			if m.State() == model.StateFetched {
				l.execModule(m, true)
			}
		})
	})
}

func (l *Loader) notifyFetch(mode, url, module string) {
	if l.opts.OnFetch != nil {
		l.opts.OnFetch(mode, url, module)
	}
}

// execModule runs the fetched body of m. Define calls made by the body are
// collected in a queue of their own and matched against m afterwards.
func (l *Loader) execModule(m *model.Module, async bool) {
	if m.State() != model.StateFetched || m.Data == nil {
		return
	}
	data := m.Data
	m.Data = nil
	l.transition(m, model.StateExecuting)

	outer := l.queue
	q := &definitionQueue{}
	l.queue = q
	err := l.runBody(m, data, q)
	l.queue = outer

	if err != nil {
		if !m.Settled() {
			l.failWith(m, tmplExecute, err)
		}
		return
	}
	l.processQueue(q, m, async)
}

func (l *Loader) runBody(m *model.Module, data model.Body, q *definitionQueue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while executing %s: %v", m.Name, r)
		}
	}()

	switch body := data.(type) {
	case model.Source:
		src := string(body)
		if l.opts.Translate != nil {
			if src, err = l.opts.Translate(m.Name, m.URL, src); err != nil {
				return fmt.Errorf("translate: %w", err)
			}
		}
		if l.eval == nil {
			return fmt.Errorf("no evaluator configured for source of %s", m.Name)
		}
		return l.eval.Eval(m.Name, m.URL, src, EvalOptions{AMD: l.shims[m.Name].AMD})
	case model.Script:
		return body()
	case *model.Definition:
		q.push(body)
		return nil
	default:
		return fmt.Errorf("unsupported body %T", data)
	}
}

// executeDefinition resolves the dependencies of def and settles m with the
// factory result.
func (l *Loader) executeDefinition(m *model.Module, def *model.Definition, async bool) {
	if m.Settled() {
		if !l.opts.AllowReexecution || m.State() != model.StateReady {
			l.logger.Warn("module already defined, ignoring definition", "module", m.Name, "state", m.State())
			return
		}
		l.logger.Warn("re-executing module", "module", m.Name)
	}
	if m.State() != model.StateExecuting {
		if !l.transition(m, model.StateExecuting) {
			return
		}
	}

	deps := def.Dependencies()
	l.requireAll(m, deps, async).Then(func(v any, err error) {
		if m.State() != model.StateExecuting {
			l.logger.Debug("module settled while its dependencies loaded", "module", m.Name, "state", m.State())
			return
		}
		if err != nil {
			l.failWith(m, tmplDependencies, err)
			return
		}
		finish := func() { l.finishDefinition(m, def, deps, v.([]any)) }
		if !async {
			finish()
			return
		}
		l.schedule(m, finish)
	})
}

// schedule runs the factory continuation of m through the scheduler. Until
// it runs, a sync request for m runs it directly.
func (l *Loader) schedule(m *model.Module, fn func()) {
	l.scheduled[m] = fn
	l.sched.Run(func() { l.runScheduled(m) })
}

// runScheduled runs the pending continuation of m and reports whether there
// was one.
func (l *Loader) runScheduled(m *model.Module) bool {
	fn, ok := l.scheduled[m]
	if !ok {
		return false
	}
	delete(l.scheduled, m)
	if cur, ok := l.reg.Get(m.Name); !ok || cur != m || m.State() != model.StateExecuting {
		l.logger.Debug("dropping scheduled execution", "module", m.Name, "state", m.State())
		return true
	}
	fn()
	return true
}

func (l *Loader) finishDefinition(m *model.Module, def *model.Definition, deps []string, values []any) {
	var v any
	if def.Factory != nil {
		var err error
		if v, err = callFactory(def.Factory, values); err != nil {
			l.failWith(m, tmplFactory, &FactoryError{Module: m.Name, Err: err})
			return
		}
	} else {
		v = def.Value
	}
	if v == nil && usesExports(deps) {
		v = l.metaOf(m).Exports
	}
	if def.ExportGlobal {
		l.globals.Set(dottedName(m.Name), v)
	}
	l.ready(m, v, true)
}

func callFactory(f model.Factory, values []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f(values)
}

// value returns the export of a ready module. Modules that settled without a
// definition read it from the global named by their shim or their name.
func (l *Loader) value(m *model.Module) any {
	if m.State() != model.StateReady {
		return nil
	}
	if v, ok := m.Content(); ok {
		return v
	}
	path := dottedName(m.Name)
	if shim, ok := l.shims[m.Name]; ok && len(shim.Exports) > 0 {
		path = shim.Exports[0]
	}
	v := l.globals.Get(path)
	if v != nil {
		m.SetContent(v)
	}
	return v
}

// dottedName turns "a/b/c.js" into "a.b.c".
func dottedName(name string) string {
	return strings.ReplaceAll(stripJS(name), "/", ".")
}

// transition moves m to a non-terminal state and reports whether it did.
func (l *Loader) transition(m *model.Module, to model.State) bool {
	from := m.State()
	if err := m.Transition(to); err != nil {
		l.violation(err)
		return false
	}
	l.broker.Publish(newEvent(m, from, nil))
	return true
}

func (l *Loader) ready(m *model.Module, v any, determined bool) {
	from := m.State()
	pending := l.unsettledAliases(m)
	if err := m.Ready(v, determined); err != nil {
		l.violation(err)
		return
	}
	modulesSettledTotal.WithLabelValues(model.StateReady.String()).Inc()
	l.broker.Publish(newEvent(m, from, nil))
	l.publishAliases(pending)
}

func (l *Loader) fail(m *model.Module, err error) {
	from := m.State()
	pending := l.unsettledAliases(m)
	if serr := m.Fail(err); serr != nil {
		l.violation(serr)
		return
	}
	modulesSettledTotal.WithLabelValues(model.StateFailed.String()).Inc()
	l.broker.Publish(newEvent(m, from, m.Err()))
	l.logger.Debug("module failed", "module", m.Name, "error", err)
	l.publishAliases(pending)
}

// failWith settles m as failed with a ModuleError built from template.
func (l *Loader) failWith(m *model.Module, template string, cause error) {
	l.fail(m, newModuleError(template, m, cause))
}

type aliasState struct {
	m    *model.Module
	from model.State
}

func (l *Loader) unsettledAliases(m *model.Module) []aliasState {
	var out []aliasState
	for _, name := range m.Aliases() {
		if a, ok := l.reg.Get(name); ok && !a.Settled() {
			out = append(out, aliasState{m: a, from: a.State()})
		}
	}
	return out
}

func (l *Loader) publishAliases(aliases []aliasState) {
	for _, a := range aliases {
		if a.m.Settled() {
			l.broker.Publish(newEvent(a.m, a.from, a.m.Err()))
		}
	}
}

// violation reports a broken state-machine rule: a panic with DevAssertions,
// an error log otherwise.
func (l *Loader) violation(err error) {
	invariantViolationsTotal.Inc()
	if l.opts.DevAssertions {
		panic(err)
	}
	l.logger.Error("module state violation ignored", "error", err)
}
