package loader

import (
	"log/slog"
	"slices"

	"github.com/seantiz/modloader/internal/model"
)

// Pseudo-dependencies satisfied by the loader itself.
const (
	depRequire = "require"
	depExports = "exports"
	depModule  = "module"
)

// requireAll requests deps on behalf of requesting and aggregates their exports
// positionally. In sync mode the returned future is settled and the first
// failure stops further requests; in async mode requests already started are
// not cancelled.
func (l *Loader) requireAll(requesting *model.Module, deps []string, async bool) *model.Future {
	base := ""
	if requesting != nil {
		base = requesting.Name
	}
	futures := make([]*model.Future, 0, len(deps))
	for _, dep := range deps {
		switch dep {
		case depRequire:
			futures = append(futures, model.Resolved(&LocalRequire{l: l, base: requesting}))
			continue
		case depExports:
			futures = append(futures, model.Resolved(l.exportsOf(requesting)))
			continue
		case depModule:
			futures = append(futures, model.Resolved(l.metaOf(requesting)))
			continue
		}

		name, err := l.normalize(dep, base)
		if err != nil {
			if !async {
				return model.Rejected(err)
			}
			futures = append(futures, model.Rejected(err))
			continue
		}
		if requesting != nil {
			requesting.AddPending(name)
		}
		f := l.requireModule(requesting, name, async, false, false)
		if !async {
			if _, err := f.Result(); err != nil {
				return f
			}
		}
		futures = append(futures, f)
	}
	return model.All(futures)
}

// requireModule returns a future for the export of the named module, loading
// it if needed. In sync mode the future is always settled on return.
func (l *Loader) requireModule(requesting *model.Module, name string, async, skipShim, skipBundle bool) *model.Future {
	m := l.reg.Create(name)
	if m.Group == "" {
		m.Group = l.bundles[name]
	}
	fresh := m.State() == model.StateUnresolved || m.State() == model.StatePreloaded

	if shim, ok := l.shims[name]; ok && len(shim.Deps) > 0 && !skipShim && fresh {
		l.logger.Debug("requiring shim dependencies", "module", name, "deps", shim.Deps)
		return then(l.requireAll(m, shim.Deps, async), func(_ any, err error) *model.Future {
			if err != nil {
				if !m.Settled() {
					l.failWith(m, tmplDependencies, err)
					return model.Rejected(m.Err())
				}
				return model.Rejected(err)
			}
			return l.requireModule(requesting, name, async, true, skipBundle)
		})
	}

	if m.State() == model.StateUnresolved && m.Group != "" && m.Group != name && !skipBundle {
		bundle := m.Group
		l.logger.Debug("requiring bundle", "module", name, "bundle", bundle)
		if async {
			return then(l.requireModule(requesting, bundle, true, false, false), func(_ any, err error) *model.Future {
				if err != nil {
					l.logger.Debug("bundle failed, loading module on its own", "module", name, "bundle", bundle, "error", err)
				}
				return l.requireModule(requesting, name, true, skipShim, true)
			})
		}
		if _, err := l.requireModule(requesting, bundle, false, false, false).Result(); err != nil {
			l.logger.Warn("bundle failed, loading module on its own", "module", name, "bundle", bundle, "error", err)
		}
		skipBundle = true
	}

	switch m.State() {
	case model.StatePreloaded:
		l.transition(m, model.StateFetched)
		m.Async = async
		if async {
			l.sched.Run(func() {
				// A sync request may have executed it already.
				if cur, ok := l.reg.Get(m.Name); ok && cur == m && m.State() == model.StateFetched {
					l.execModule(m, true)
				}
			})
			return l.waitFor(m)
		}
		l.execModule(m, false)
		return l.outcome(m, false)
	case model.StateReady:
		return model.Resolved(l.value(m))
	case model.StateFailed:
		return model.Rejected(m.Err())
	case model.StateFetched:
		if async {
			return l.waitFor(m)
		}
		// An async fetch delivered the body but its execution is still
		// scheduled; run it now.
		l.execModule(m, false)
		return l.outcome(m, false)
	case model.StateFetching, model.StateExecuting:
		if async {
			if requesting != nil && l.dependsOn(m, requesting) {
				l.cycle(requesting, m)
				return model.Resolved(nil)
			}
			return l.waitFor(m)
		}
		if l.runScheduled(m) {
			// Its factory was waiting for a later task.
			return l.outcome(m, false)
		}
		if m.State() == model.StateExecuting || !m.Async {
			l.cycle(requesting, m)
			return model.Resolved(nil)
		}
		l.logger.Warn("sync request for a module being loaded async, loading it again", "module", name)
	}

	l.transition(m, model.StateFetching)
	m.Async = async
	if async {
		l.loadAsync(m)
		return l.waitFor(m)
	}
	l.loadSync(m)
	return l.outcome(m, false)
}

// outcome returns a future for a module that has just been executed.
func (l *Loader) outcome(m *model.Module, async bool) *model.Future {
	switch m.State() {
	case model.StateReady:
		return model.Resolved(l.value(m))
	case model.StateFailed:
		return model.Rejected(m.Err())
	}
	if async {
		return l.waitFor(m)
	}
	// Still executing: a dependency cycle reached back into it.
	return model.Resolved(nil)
}

// waitFor returns a future settled with the module's export once it settles.
// Waiters always run in a later host task.
func (l *Loader) waitFor(m *model.Module) *model.Future {
	out := &model.Future{}
	m.Deferred().Then(func(_ any, err error) {
		l.post(func() {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(l.value(m))
		})
	})
	return out
}

// dependsOn reports whether a reaches b through declared dependencies.
func (l *Loader) dependsOn(a, b *model.Module) bool {
	visited := make(map[string]bool)
	var walk func(m *model.Module) bool
	walk = func(m *model.Module) bool {
		if m == b {
			return true
		}
		if visited[m.Name] {
			return false
		}
		visited[m.Name] = true
		for _, name := range m.Pending {
			if dep, ok := l.reg.Get(name); ok && walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(a)
}

func (l *Loader) cycle(requesting, m *model.Module) {
	cyclePlaceholdersTotal.Inc()
	if l.logger.Enabled(l.opts.Context, slog.LevelDebug) {
		from := ""
		if requesting != nil {
			from = requesting.Name
		}
		l.logger.Debug("cyclic dependency, using undefined placeholder", "module", m.Name, "requested_by", from, "state", m.State())
	}
}

// then chains next onto f and returns a future settled with next's result.
func then(f *model.Future, next func(v any, err error) *model.Future) *model.Future {
	out := &model.Future{}
	f.Then(func(v any, err error) {
		next(v, err).Then(func(v any, err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(v)
		})
	})
	return out
}

// exportsOf returns the exports object of m, creating it on first use.
func (l *Loader) exportsOf(m *model.Module) any {
	if m == nil {
		return nil
	}
	return l.metaOf(m).Exports
}

// metaOf returns the module object of m, creating it on first use.
func (l *Loader) metaOf(m *model.Module) *model.Meta {
	if m == nil {
		return nil
	}
	if m.Meta == nil {
		m.Exports = l.opts.NewExports()
		m.Meta = &model.Meta{ID: stripJS(m.Name), URL: m.URL, Exports: m.Exports}
	}
	return m.Meta
}

// usesExports reports whether deps hand the factory its exports or module object.
func usesExports(deps []string) bool {
	return slices.Contains(deps, depExports) || slices.Contains(deps, depModule)
}

// LocalRequire is the "require" pseudo-dependency: a require function bound
// to the module that asked for it.
type LocalRequire struct {
	l    *Loader
	base *model.Module
}

// Require loads ids asynchronously relative to the bound module.
func (r *LocalRequire) Require(ids []string, onOK func([]any), onErr func(error)) *model.Future {
	return r.l.requireFrom(r.base, ids, onOK, onErr)
}

// Probe returns the export of id if it is ready, relative to the bound module.
func (r *LocalRequire) Probe(id string) any {
	name, err := r.l.normalize(id, r.baseName())
	if err != nil {
		return nil
	}
	m, ok := r.l.reg.Get(name)
	if !ok {
		return nil
	}
	return r.l.value(m)
}

// Sync loads id synchronously relative to the bound module.
func (r *LocalRequire) Sync(id string) (any, error) {
	return r.l.requireSyncFrom(r.base, id)
}

// ToURL returns the URL of a resource relative to the bound module.
func (r *LocalRequire) ToURL(id string) (string, error) {
	return r.l.toURL(id, r.baseName())
}

// Module returns the name of the bound module, empty at top level.
func (r *LocalRequire) Module() string { return r.baseName() }

func (r *LocalRequire) baseName() string {
	if r.base == nil {
		return ""
	}
	return r.base.Name
}
