// Package huggingface crawls the Hugging Face daily papers listing.
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/papersources"
)

const (
	defaultBaseURL    = "https://huggingface.co"
	defaultMaxResults = 50
)

// Config configures the Hugging Face source client.
type Config struct {
	Enabled    bool
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	MaxResults int
}

// Client fetches the daily papers listing. The page is a server-rendered
// application whose paper data is embedded as JSON in a data-props
// attribute; when that payload is missing the client falls back to
// scraping the listing anchors.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time interface verification.
var _ papersources.Source = (*Client)(nil)

// NewClient creates a Hugging Face daily papers client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.MaxResults <= 0 {
		config.MaxResults = defaultMaxResults
	}

	httpConfig := papersources.DefaultHTTPClientConfig()
	if config.Timeout > 0 {
		httpConfig.Timeout = config.Timeout
	}
	if config.RateLimit > 0 {
		httpConfig.RateLimit = config.RateLimit
	}

	return &Client{
		httpClient: papersources.NewHTTPClient("huggingface", httpConfig),
		config:     config,
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeHuggingFace
}

// Name returns the human-readable source name.
func (c *Client) Name() string {
	return "Hugging Face Daily Papers"
}

// IsEnabled reports whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// FetchLatest retrieves the daily papers listing and converts each entry
// into a domain paper.
func (c *Client) FetchLatest(ctx context.Context, params papersources.FetchParams) (*papersources.FetchResult, error) {
	start := time.Now()

	listingURL := c.config.BaseURL + "/papers"
	if params.Date != nil {
		listingURL += "/date/" + params.Date.Format("2006-01-02")
	}

	resp, err := c.httpClient.Get(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily papers listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ExternalAPIError{
			Source:     "huggingface",
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

	papers, err := c.parseEmbeddedProps(doc, maxResults)
	if err != nil {
		return nil, err
	}
	if papers == nil {
		papers = c.parseListingAnchors(doc, maxResults)
	}

	return &papersources.FetchResult{
		Papers:   papers,
		Source:   domain.SourceTypeHuggingFace,
		Duration: time.Since(start),
	}, nil
}

type listingProps struct {
	DailyPapers []json.RawMessage `json:"dailyPapers"`
}

type dailyPaperEntry struct {
	Paper struct {
		ID          string     `json:"id"`
		Title       string     `json:"title"`
		Summary     string     `json:"summary"`
		PublishedAt *time.Time `json:"publishedAt"`
		Authors     []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"paper"`
}

// parseEmbeddedProps extracts papers from the data-props JSON payload.
// Returns nil papers with nil error when the payload is absent.
func (c *Client) parseEmbeddedProps(doc *goquery.Document, maxResults int) ([]*domain.Paper, error) {
	var propsJSON string
	doc.Find("div[data-props]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, _ := sel.Attr("data-props")
		if strings.Contains(raw, "dailyPapers") {
			propsJSON = raw
			return false
		}
		return true
	})
	if propsJSON == "" {
		return nil, nil
	}

	var props listingProps
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return nil, fmt.Errorf("failed to decode listing payload: %w", err)
	}

	papers := make([]*domain.Paper, 0, len(props.DailyPapers))
	for _, raw := range props.DailyPapers {
		if len(papers) >= maxResults {
			break
		}

		var entry dailyPaperEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Paper.ID == "" || entry.Paper.Title == "" {
			continue
		}

		var rawPayload map[string]interface{}
		_ = json.Unmarshal(raw, &rawPayload)

		authors := make([]string, 0, len(entry.Paper.Authors))
		for _, author := range entry.Paper.Authors {
			if author.Name != "" {
				authors = append(authors, author.Name)
			}
		}

		papers = append(papers, &domain.Paper{
			Identity:        domain.PaperIdentity(domain.SourceTypeHuggingFace, entry.Paper.ID),
			ExternalID:      entry.Paper.ID,
			Title:           strings.TrimSpace(entry.Paper.Title),
			Authors:         authors,
			Abstract:        strings.TrimSpace(entry.Paper.Summary),
			PublicationDate: entry.Paper.PublishedAt,
			Source:          domain.SourceTypeHuggingFace,
			PDFURL:          pdfURL(entry.Paper.ID),
			RawPayload:      rawPayload,
			Status:          domain.PaperStatusDiscovered,
		})
	}

	return papers, nil
}

// parseListingAnchors scrapes the paper links directly. Only the external
// ID and title are available on this path; the abstract stays empty until
// analysis fetches the paper itself.
func (c *Client) parseListingAnchors(doc *goquery.Document, maxResults int) []*domain.Paper {
	seen := make(map[string]bool)
	var papers []*domain.Paper

	doc.Find(`a[href^="/papers/"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(papers) >= maxResults {
			return false
		}

		href, _ := sel.Attr("href")
		externalID := strings.TrimPrefix(href, "/papers/")
		if i := strings.IndexAny(externalID, "?#/"); i >= 0 {
			externalID = externalID[:i]
		}

		title := strings.TrimSpace(sel.Text())
		if externalID == "" || title == "" || seen[externalID] {
			return true
		}
		seen[externalID] = true

		papers = append(papers, &domain.Paper{
			Identity:   domain.PaperIdentity(domain.SourceTypeHuggingFace, externalID),
			ExternalID: externalID,
			Title:      title,
			Source:     domain.SourceTypeHuggingFace,
			PDFURL:     pdfURL(externalID),
			Status:     domain.PaperStatusDiscovered,
		})
		return true
	})

	return papers
}

// pdfURL builds the arXiv PDF link for a daily papers entry; the listing
// uses arXiv identifiers.
func pdfURL(externalID string) string {
	return "https://arxiv.org/pdf/" + externalID
}
