package loader

import (
	"strings"
	"sync"
)

// MapGlobals is a GlobalResolver over nested maps, used when no script
// engine provides a global object.
type MapGlobals struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewMapGlobals creates an empty global namespace.
func NewMapGlobals() *MapGlobals {
	return &MapGlobals{root: make(map[string]any)}
}

// Get returns the value at the dotted path, or nil.
func (g *MapGlobals) Get(path string) any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cur any = g.root
	for part := range strings.SplitSeq(path, ".") {
		ns, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = ns[part]; !ok {
			return nil
		}
	}
	return cur
}

// Set stores v at the dotted path, creating intermediate namespaces.
// Non-namespace values on the way are replaced.
func (g *MapGlobals) Set(path string, v any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parts := strings.Split(path, ".")
	ns := g.root
	for _, part := range parts[:len(parts)-1] {
		next, ok := ns[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			ns[part] = next
		}
		ns = next
	}
	ns[parts[len(parts)-1]] = v
}
