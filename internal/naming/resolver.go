package naming

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// DefaultBaseURL is the URL of the empty prefix until one is registered.
const DefaultBaseURL = "./"

// StarContext is the map context that applies to every requesting module
// without a more specific context.
const StarContext = "*"

// ErrFinalPath is returned when a final URL prefix would be changed.
var ErrFinalPath = errors.New("url prefix is final")

type urlPrefix struct {
	url   string
	final bool
}

// Resolver holds the URL-prefix and ID-map tables. It is not safe for
// concurrent mutation.
type Resolver struct {
	paths map[string]urlPrefix
	maps  map[string]map[string]string
}

// NewResolver returns a resolver whose only URL prefix is the empty prefix
// pointing at baseURL (DefaultBaseURL when empty).
func NewResolver(baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Resolver{
		paths: map[string]urlPrefix{"": {url: withSlash(baseURL)}},
		maps:  make(map[string]map[string]string),
	}
}

// SetPath registers url as the location of all resources below prefix. An
// empty url removes the prefix; removing the empty prefix restores
// DefaultBaseURL. Final prefixes cannot be changed afterwards.
func (r *Resolver) SetPath(prefix, url string, final bool) error {
	prefix = strings.TrimSuffix(prefix, "/")
	if old, ok := r.paths[prefix]; ok && old.final {
		return fmt.Errorf("%w: %q -> %q", ErrFinalPath, prefix, old.url)
	}
	switch {
	case url != "":
		r.paths[prefix] = urlPrefix{url: withSlash(url), final: final}
	case prefix == "":
		r.paths[""] = urlPrefix{url: DefaultBaseURL}
	default:
		delete(r.paths, prefix)
	}
	return nil
}

// Paths returns a copy of the registered prefixes and their URLs.
func (r *Resolver) Paths() map[string]string {
	out := make(map[string]string, len(r.paths))
	for p, u := range r.paths {
		out[p] = u.url
	}
	return out
}

// SetMap registers identifier rewrites for modules requested from within
// context. Use StarContext for rewrites that apply everywhere. Entries merge
// into any existing map for the same context.
func (r *Resolver) SetMap(context string, m map[string]string) {
	context = strings.TrimSuffix(context, "/")
	if context == "" {
		context = StarContext
	}
	existing, ok := r.maps[context]
	if !ok {
		existing = make(map[string]string, len(m))
		r.maps[context] = existing
	}
	for from, to := range m {
		existing[strings.TrimSuffix(from, "/")] = strings.TrimSuffix(to, "/")
	}
}

// Maps returns a copy of the registered map contexts.
func (r *Resolver) Maps() map[string]map[string]string {
	out := make(map[string]map[string]string, len(r.maps))
	for ctx, m := range r.maps {
		out[ctx] = maps.Clone(m)
	}
	return out
}

// Map rewrites id according to the most specific map context of the requesting
// module ID context. Within that context the longest matching source prefix
// wins. Matching is on whole path segments.
func (r *Resolver) Map(id, context string) string {
	m := r.mapContext(context)
	if m == nil {
		return id
	}
	for _, p := range prefixes(id, true) {
		if to, ok := m[p[0]]; ok {
			return to + p[1]
		}
	}
	return id
}

func (r *Resolver) mapContext(context string) map[string]string {
	if context != "" {
		for _, p := range prefixes(context, true) {
			if m, ok := r.maps[p[0]]; ok {
				return m
			}
		}
	}
	return r.maps[StarContext]
}

// ToURL returns the URL for the resource name, using the longest registered
// prefix and falling back to the empty prefix.
func (r *Resolver) ToURL(name string) string {
	for _, p := range prefixes(name, true) {
		if u, ok := r.paths[p[0]]; ok {
			return u.url + strings.TrimPrefix(p[1], "/")
		}
	}
	return r.paths[""].url + name
}

func withSlash(url string) string {
	if strings.HasSuffix(url, "/") {
		return url
	}
	return url + "/"
}
