// Package registry holds the identity-keyed table of module records. It is the
// single source of truth for module state: every component obtains modules
// through get-or-create so there is exactly one record per name.
package registry

import (
	"sort"
	"sync"

	"github.com/seantiz/modloader/internal/model"
)

// Registry is the module table the loader is constructed with.
type Registry interface {
	// Get returns the module registered under name.
	Get(name string) (*model.Module, bool)
	// Create returns the module registered under name, creating an unresolved
	// record if there is none.
	Create(name string) *model.Module
	// All returns every module, sorted by name.
	All() []*model.Module
	// Delete evicts the module registered under name.
	Delete(name string) bool
}

// Compile-time interface satisfaction check.
var _ Registry = (*Memory)(nil)

// Memory is an in-process Registry. The map is guarded so that introspection
// may run on other goroutines; module records themselves are not.
type Memory struct {
	mu      sync.RWMutex
	modules map[string]*model.Module
}

// New creates an empty registry.
func New() *Memory {
	return &Memory{
		modules: make(map[string]*model.Module),
	}
}

// Get returns the module registered under name.
func (r *Memory) Get(name string) (*model.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Create returns the existing module or registers a new one.
func (r *Memory) Create(name string) *model.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[name]; ok {
		return m
	}
	m := model.NewModule(name)
	r.modules[name] = m
	return m
}

// All returns all registered modules sorted by name for stable reports.
func (r *Memory) All() []*model.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mods := make([]*model.Module, 0, len(r.modules))
	for _, m := range r.modules {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool {
		return mods[i].Name < mods[j].Name
	})
	return mods
}

// Delete removes the module registered under name.
func (r *Memory) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.modules[name]
	delete(r.modules, name)
	return ok
}

// Len returns the number of registered modules.
func (r *Memory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}
