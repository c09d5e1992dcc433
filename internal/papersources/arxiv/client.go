// Package arxiv crawls the arXiv new-submissions listing pages.
package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/papersources"
)

const (
	defaultBaseURL    = "https://arxiv.org"
	defaultCategory   = "cs.LG"
	defaultMaxResults = 50
)

// Config configures the arXiv source client.
type Config struct {
	Enabled    bool
	BaseURL    string
	Category   string
	Timeout    time.Duration
	RateLimit  float64
	MaxResults int
}

// Client scrapes the /list/<category>/new page. The listing is plain HTML
// with dt/dd pairs per submission and includes title, authors, subjects
// and abstract, so no per-paper follow-up requests are needed.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time interface verification.
var _ papersources.Source = (*Client)(nil)

// NewClient creates an arXiv listing client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.Category == "" {
		config.Category = defaultCategory
	}
	if config.MaxResults <= 0 {
		config.MaxResults = defaultMaxResults
	}

	httpConfig := papersources.DefaultHTTPClientConfig()
	// arXiv asks crawlers to stay well under 1 req/s.
	httpConfig.RateLimit = 0.5
	httpConfig.BurstSize = 1
	if config.Timeout > 0 {
		httpConfig.Timeout = config.Timeout
	}
	if config.RateLimit > 0 {
		httpConfig.RateLimit = config.RateLimit
	}

	return &Client{
		httpClient: papersources.NewHTTPClient("arxiv", httpConfig),
		config:     config,
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable source name.
func (c *Client) Name() string {
	return "arXiv New Submissions"
}

// IsEnabled reports whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// FetchLatest retrieves the new-submissions listing for the configured
// category and converts each entry into a domain paper.
func (c *Client) FetchLatest(ctx context.Context, params papersources.FetchParams) (*papersources.FetchResult, error) {
	start := time.Now()

	listingURL := fmt.Sprintf("%s/list/%s/new", c.config.BaseURL, c.config.Category)

	resp, err := c.httpClient.Get(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch arxiv listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ExternalAPIError{
			Source:     "arxiv",
			StatusCode: resp.StatusCode,
			Message:    "unexpected listing response",
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	maxResults := c.config.MaxResults
	if params.MaxResults > 0 && params.MaxResults < maxResults {
		maxResults = params.MaxResults
	}

	papers := c.parseListing(doc, maxResults)

	return &papersources.FetchResult{
		Papers:   papers,
		Source:   domain.SourceTypeArXiv,
		Duration: time.Since(start),
	}, nil
}

// parseListing walks the dt/dd pairs of the listing page. Each dt holds
// the abstract link carrying the identifier; the following dd holds the
// metadata block.
func (c *Client) parseListing(doc *goquery.Document, maxResults int) []*domain.Paper {
	var papers []*domain.Paper

	doc.Find("dl dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if len(papers) >= maxResults {
			return false
		}

		externalID := extractExternalID(dt)
		if externalID == "" {
			return true
		}

		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return true
		}

		title := cleanListingField(dd.Find("div.list-title").First().Text(), "Title:")
		if title == "" {
			return true
		}

		var authors []string
		dd.Find("div.list-authors a").Each(func(_ int, a *goquery.Selection) {
			if name := strings.TrimSpace(a.Text()); name != "" {
				authors = append(authors, name)
			}
		})

		var categories []string
		if primary := strings.TrimSpace(dd.Find("span.primary-subject").First().Text()); primary != "" {
			categories = append(categories, extractCategoryCode(primary))
		}

		abstract := strings.TrimSpace(dd.Find("p.mathjax").First().Text())

		papers = append(papers, &domain.Paper{
			Identity:   domain.PaperIdentity(domain.SourceTypeArXiv, externalID),
			ExternalID: externalID,
			Title:      title,
			Authors:    authors,
			Abstract:   abstract,
			Source:     domain.SourceTypeArXiv,
			PDFURL:     fmt.Sprintf("%s/pdf/%s", c.config.BaseURL, externalID),
			Categories: categories,
			Status:     domain.PaperStatusDiscovered,
		})
		return true
	})

	return papers
}

// extractExternalID pulls the identifier out of the abstract link href,
// e.g. /abs/2501.12345 -> 2501.12345.
func extractExternalID(dt *goquery.Selection) string {
	href, ok := dt.Find(`a[href^="/abs/"]`).First().Attr("href")
	if !ok {
		return ""
	}
	id := strings.TrimPrefix(href, "/abs/")
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	return strings.TrimSpace(id)
}

// cleanListingField strips the label prefix arXiv renders inside metadata
// divs and collapses surrounding whitespace.
func cleanListingField(text, label string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, label)
	return strings.Join(strings.Fields(text), " ")
}

// extractCategoryCode reduces "Machine Learning (cs.LG)" to "cs.LG".
func extractCategoryCode(subject string) string {
	open := strings.LastIndex(subject, "(")
	closing := strings.LastIndex(subject, ")")
	if open >= 0 && closing > open {
		return subject[open+1 : closing]
	}
	return subject
}
