// Package papersources defines the abstraction for the external listing
// pages the service crawls, together with shared HTTP plumbing: a
// rate-limited retrying client and a registry that fans a crawl out across
// every enabled source.
package papersources

import (
	"context"
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// FetchParams controls a single listing fetch.
type FetchParams struct {
	// MaxResults caps how many papers the source may return. Zero means
	// the source's configured default.
	MaxResults int

	// Date selects which daily listing to fetch for sources that publish
	// dated pages. Nil means the most recent listing.
	Date *time.Time
}

// FetchResult holds the papers extracted from one listing fetch.
type FetchResult struct {
	Papers   []*domain.Paper
	Source   domain.SourceType
	Duration time.Duration
}

// Source is implemented by each upstream paper listing. Implementations
// must be safe for concurrent use and must populate domain.Paper.Identity
// via domain.PaperIdentity so discovery stays idempotent across runs.
type Source interface {
	// FetchLatest retrieves the newest listing and converts each entry
	// into a domain paper.
	FetchLatest(ctx context.Context, params FetchParams) (*FetchResult, error)

	// SourceType returns the type identifier stored on papers.
	SourceType() domain.SourceType

	// Name returns a human-readable source name for logs and errors.
	Name() string

	// IsEnabled reports whether the source is configured and usable.
	IsEnabled() bool
}
