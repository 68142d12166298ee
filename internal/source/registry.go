package source

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names accepted in Spec.Kind.
const (
	KindSearch     = "search"
	KindAcademic   = "academic"
	KindRSS        = "rss"
	KindHTML       = "html"
	KindHackerNews = "hackernews"
	KindReddit     = "reddit"
)

// Factory builds a Source from its Spec.
type Factory func(spec Spec, deps Deps) (Source, error)

// Registry maps kind names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtin returns a registry with every adapter kind this package ships.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(KindSearch, NewSearchAPI)
	r.Register(KindAcademic, NewAcademic)
	r.Register(KindRSS, NewRSS)
	r.Register(KindHTML, NewHTMLScrape)
	r.Register(KindHackerNews, NewHackerNews)
	r.Register(KindReddit, NewReddit)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[strings.ToLower(kind)] = f
}

// Kinds lists the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New constructs one source. Unknown kinds and missing options are ConfigErrors.
func (r *Registry) New(spec Spec, deps Deps) (Source, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, &ConfigError{Source: "(unnamed)", Reason: "name is required"}
	}
	f, ok := r.factories[strings.ToLower(spec.Kind)]
	if !ok {
		return nil, &ConfigError{
			Source: spec.Name,
			Reason: fmt.Sprintf("unknown kind %q (want one of %s)", spec.Kind, strings.Join(r.Kinds(), ", ")),
		}
	}
	return f(spec, deps.withDefaults())
}

// Build constructs sources in spec order. Every source shares one set of
// deps, so per-host pacing applies across them.
func (r *Registry) Build(specs []Spec, deps Deps) ([]Source, error) {
	deps = deps.withDefaults()
	sources := make([]Source, 0, len(specs))
	for _, spec := range specs {
		src, err := r.New(spec, deps)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
