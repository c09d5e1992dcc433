package papersources

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// SourceResult pairs one source's fetch outcome with its identity so the
// orchestrator can record partial failures without losing the rest of the
// crawl.
type SourceResult struct {
	Source domain.SourceType
	Result *FetchResult
	Err    error
}

// Registry holds the configured sources and fans crawl fetches out across
// the enabled ones.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Source),
	}
}

// Register adds or replaces a source.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns the source for the given type.
func (r *Registry) Get(sourceType domain.SourceType) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.sources[sourceType]
	if !ok {
		return nil, domain.NewNotFoundError("source", string(sourceType))
	}
	return source, nil
}

// EnabledSources returns all enabled sources in stable type order.
func (r *Registry) EnabledSources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []Source
	for _, source := range r.sources {
		if source.IsEnabled() {
			enabled = append(enabled, source)
		}
	}
	sort.Slice(enabled, func(i, j int) bool {
		return enabled[i].SourceType() < enabled[j].SourceType()
	})
	return enabled
}

// FetchAll fetches the latest listing from every enabled source
// concurrently. One slow or failing source never blocks the others; each
// result carries its own error. The returned slice is ordered by source
// type so run summaries stay deterministic.
func (r *Registry) FetchAll(ctx context.Context, params FetchParams) []SourceResult {
	sources := r.EnabledSources()
	if len(sources) == 0 {
		return nil
	}

	results := make([]SourceResult, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		g.Go(func() error {
			result, err := source.FetchLatest(ctx, params)
			results[i] = SourceResult{
				Source: source.SourceType(),
				Result: result,
				Err:    err,
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
