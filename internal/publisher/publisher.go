// Package publisher defines the channel publishing capability surface.
//
// The digest pipeline produces Markdown reports; pushing them to outside
// channels (chat platforms, blogs, feeds) is a separate concern behind the
// Publisher interface. No adapters ship yet: the registry exists so that
// channel integrations plug in without touching the pipeline.
package publisher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Content is the channel-agnostic publishable form of a report.
type Content struct {
	// Title is the headline for the published piece.
	Title string

	// Body is the rendered Markdown.
	Body string

	// Tags are optional channel hints (topic labels, categories).
	Tags []string

	// ReportID ties the published piece back to its report row.
	ReportID string
}

// Status describes the state of a previously published piece.
type Status struct {
	// Published reports whether the piece is live on the channel.
	Published bool

	// URL locates the piece on the channel, when the channel has URLs.
	URL string

	// Detail carries channel-specific status information.
	Detail string
}

// Publisher is one outbound channel integration.
type Publisher interface {
	// Name returns the unique channel name used as the registry key.
	Name() string

	// ValidateConfig checks the channel's configuration without side
	// effects. Called at registration time.
	ValidateConfig() error

	// Authenticate establishes or refreshes the channel session.
	Authenticate(ctx context.Context) error

	// FormatContent adapts a report to the channel's constraints
	// (length limits, markup dialect).
	FormatContent(ctx context.Context, report *domain.Report) (*Content, error)

	// Publish pushes formatted content to the channel and returns a
	// channel-specific identifier for the published piece.
	Publish(ctx context.Context, content *Content) (string, error)

	// GetStatus looks up the state of a previously published piece.
	GetStatus(ctx context.Context, publicationID string) (*Status, error)
}

// Registry holds the configured channel publishers keyed by name.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

// NewRegistry creates an empty publisher registry.
func NewRegistry() *Registry {
	return &Registry{
		publishers: make(map[string]Publisher),
	}
}

// Register validates and adds a publisher. A duplicate name or a failing
// config check is an error.
func (r *Registry) Register(p Publisher) error {
	if p == nil {
		return domain.NewValidationError("publisher", "publisher cannot be nil")
	}
	if p.Name() == "" {
		return domain.NewValidationError("name", "publisher name is required")
	}
	if err := p.ValidateConfig(); err != nil {
		return fmt.Errorf("publisher %q: invalid config: %w", p.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.publishers[p.Name()]; exists {
		return domain.NewAlreadyExistsError("publisher", p.Name())
	}
	r.publishers[p.Name()] = p
	return nil
}

// Get returns the publisher registered under name.
func (r *Registry) Get(name string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.publishers[name]
	if !ok {
		return nil, domain.NewNotFoundError("publisher", name)
	}
	return p, nil
}

// Names returns the registered channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
