package loader

import (
	"fmt"
	"maps"
	"slices"

	"github.com/seantiz/modloader/internal/model"
)

// RegisterResourcePath makes url the location of all resources below prefix.
// An empty url removes the prefix. A final prefix cannot be changed later.
func (l *Loader) RegisterResourcePath(prefix, url string, final bool) error {
	if err := l.names.SetPath(prefix, url, final); err != nil {
		return fmt.Errorf("register resource path: %w", err)
	}
	l.logger.Debug("registered resource path", "prefix", prefix, "url", url, "final", final)
	return nil
}

// ResourcePaths returns the registered URL prefixes.
func (l *Loader) ResourcePaths() map[string]string {
	return l.names.Paths()
}

// RegisterMap adds ID rewrites for modules requested from context ("*" for all).
func (l *Loader) RegisterMap(context string, m map[string]string) {
	l.names.SetMap(context, m)
}

// Maps returns the registered ID maps by context.
func (l *Loader) Maps() map[string]map[string]string {
	return l.names.Maps()
}

// RegisterShim attaches shim to id, replacing any earlier shim.
func (l *Loader) RegisterShim(id string, shim Shim) {
	l.shims[qualify(id)] = shim
}

// Shims returns the registered shims by resource name.
func (l *Loader) Shims() map[string]Shim {
	return maps.Clone(l.shims)
}

// RegisterBundle records that the bodies of members are delivered by bundle.
// Requests for an unresolved member load the bundle first.
func (l *Loader) RegisterBundle(bundle string, members []string) {
	bundle = qualify(bundle)
	for _, member := range members {
		name := qualify(member)
		l.bundles[name] = bundle
		l.reg.Create(name).Group = bundle
	}
}

// Bundles returns the bundle of every registered member.
func (l *Loader) Bundles() map[string]string {
	return maps.Clone(l.bundles)
}

// RegisterDepCache records the known dependencies of id so that they can be
// fetched alongside it.
func (l *Loader) RegisterDepCache(id string, deps []string) {
	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = qualify(d)
	}
	l.depCache[qualify(id)] = names
}

// Preload hands over module bodies without fetching them. Modules that are
// already past the unresolved state keep their current body.
func (l *Loader) Preload(p model.Preload, group string) int {
	if group != "" {
		group = qualify(group)
	}
	n := 0
	for _, id := range slices.Sorted(maps.Keys(p)) {
		name := qualify(id)
		m := l.reg.Create(name)
		if m.State() != model.StateUnresolved {
			continue
		}
		m.Data = p[id]
		if group != "" {
			m.Group = group
			l.bundles[name] = group
		}
		l.transition(m, model.StatePreloaded)
		n++
	}
	l.logger.Debug("preloaded modules", "group", group, "count", n)
	return n
}

// Evict removes id from the registry. A response still in flight for it is
// discarded when it arrives.
func (l *Loader) Evict(id string) bool {
	name := qualify(id)
	delete(l.sizes, name)
	if m, ok := l.reg.Get(name); ok {
		delete(l.scheduled, m)
	}
	ok := l.reg.Delete(name)
	if ok {
		l.logger.Debug("evicted module", "module", name)
	}
	return ok
}

// EvictBundle removes the bundle module and every module loaded as part of it.
// Bundle membership is kept, so the next request loads the bundle again.
func (l *Loader) EvictBundle(bundle string) int {
	bundle = qualify(bundle)
	n := 0
	for _, m := range l.reg.All() {
		if m.Group == bundle || m.Name == bundle {
			if l.Evict(m.Name) {
				n++
			}
		}
	}
	l.logger.Info("evicted bundle", "bundle", bundle, "modules", n)
	return n
}

// Reset returns a failed module to the unresolved state so the next request
// loads it again.
func (l *Loader) Reset(id string) error {
	name := qualify(id)
	m, ok := l.reg.Get(name)
	if !ok {
		return fmt.Errorf("reset %s: %w", name, ErrUnknownModule)
	}
	from := m.State()
	if err := m.Reset(); err != nil {
		return fmt.Errorf("reset %s: %w", name, err)
	}
	l.broker.Publish(newEvent(m, from, nil))
	return nil
}
