package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// SchemeNone is the registry key used for URLs without a scheme.
const SchemeNone = ""

// Registry holds getters by URL scheme and dispatches each request to the
// getter registered for its scheme. A Registry is itself a Getter.
type Registry struct {
	mu      sync.RWMutex
	getters map[string]Getter
}

// NewRegistry creates an empty getter registry.
func NewRegistry() *Registry {
	return &Registry{
		getters: make(map[string]Getter),
	}
}

// NewDefaultRegistry registers the HTTP getter for http and https and a file
// getter rooted at root for file URLs and scheme-less paths.
func NewDefaultRegistry(root string, opts ...HTTPOption) *Registry {
	h := NewHTTPGetter(DefaultTimeout)
	for _, opt := range opts {
		opt(h)
	}
	f := &FileGetter{Root: root}

	r := NewRegistry()
	r.Register("http", h)
	r.Register("https", h)
	r.Register("file", f)
	r.Register(SchemeNone, f)
	return r
}

// HTTPOption configures the HTTP getter of a default registry.
type HTTPOption func(*HTTPGetter)

// WithTimeout sets the per-request timeout of the HTTP getter.
func WithTimeout(d time.Duration) HTTPOption {
	return func(g *HTTPGetter) {
		if d > 0 {
			g.Client.Timeout = d
		}
	}
}

// Register adds g under scheme, replacing any previous getter.
func (r *Registry) Register(scheme string, g Getter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getters[strings.ToLower(scheme)] = g
}

// Resolve returns the getter for rawURL's scheme.
func (r *Registry) Resolve(rawURL string) (Getter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.getters[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no getter registered for scheme %q", u.Scheme)
	}
	return g, nil
}

// Schemes lists the registered schemes, sorted for stable output.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.getters))
	for s := range r.getters {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Get dispatches to the getter for rawURL's scheme.
func (r *Registry) Get(ctx context.Context, rawURL string) (Response, error) {
	g, err := r.Resolve(rawURL)
	if err != nil {
		return Response{}, &FetchError{URL: rawURL, Err: err}
	}
	return g.Get(ctx, rawURL)
}
