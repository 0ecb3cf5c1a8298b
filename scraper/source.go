// Package scraper holds the catalog adapters and the HTTP plumbing they share.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/isbn-finder/config"
	"github.com/aluiziolira/isbn-finder/models"
)

// Source is one catalog that can be searched by ISBN.
//
// Search returns a failed outcome with a nil error when the catalog has no match.
// A non-nil error means the adapter itself broke. CheckStatus reports reachability
// and maps every internal failure to false.
type Source interface {
	Name() string
	Search(ctx context.Context, isbn string) (models.LookupOutcome, error)
	CheckStatus(ctx context.Context) bool
}

// Entry is a registered source and the name results are attributed to.
type Entry struct {
	Name   string
	Source Source
}

// Registry is the ordered list of sources consulted by a lookup.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Add appends src with the lowest priority so far.
func (r *Registry) Add(name string, src Source) error {
	if name == "" {
		return errors.New("source name cannot be empty")
	}
	if src == nil {
		return fmt.Errorf("source %q is nil", name)
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("source %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, Entry{Name: name, Source: src})
	return nil
}

// Entries returns a copy of the registered sources in priority order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the registered names in priority order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Name
	}
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.entries)
}

// BuildRegistry constructs the adapters for every enabled source in cfg, in order.
func BuildRegistry(cfg *config.Config, fetcher *Fetcher) (*Registry, error) {
	reg := NewRegistry()
	for _, sc := range cfg.EnabledSources() {
		var src Source
		switch sc.Kind {
		case config.SourceKindHTML:
			profile, ok := LookupProfile(sc.Profile)
			if !ok {
				return nil, fmt.Errorf("source %q: unknown profile %q", sc.Name, sc.Profile)
			}
			src = NewHTMLSource(sc.Name, sc.BaseURL, profile, fetcher)
		case config.SourceKindGoogleBooks:
			src = NewGoogleBooksSource(sc.Name, sc.BaseURL, sc.APIKey, fetcher)
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", sc.Name, sc.Kind)
		}
		if err := reg.Add(sc.Name, src); err != nil {
			return nil, err
		}
	}
	if reg.Len() == 0 {
		return nil, errors.New("no sources enabled")
	}
	return reg, nil
}
