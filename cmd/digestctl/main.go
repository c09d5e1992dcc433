// Package main provides digestctl, a CLI client for the paper digest
// service REST API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// apiClient issues authenticated JSON requests against the service API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) do(method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

// printJSON pretty-prints an API response to stdout.
func printJSON(raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, writeErr := os.Stdout.Write(raw)
		return writeErr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}

func newRootCmd() *cobra.Command {
	client := &apiClient{}
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "digestctl",
		Short:         "Command line client for the paper digest service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if client.apiKey == "" {
				client.apiKey = os.Getenv("PAPERDIGEST_API_KEY")
			}
			client.http = &http.Client{Timeout: timeout}
		},
	}

	root.PersistentFlags().StringVar(&client.baseURL, "server", "http://localhost:8080", "Service base URL")
	root.PersistentFlags().StringVar(&client.apiKey, "api-key", "", "API key (defaults to PAPERDIGEST_API_KEY)")
	// Crawl and analyze triggers block until the run finishes.
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Request timeout")

	root.AddCommand(
		newCrawlCmd(client),
		newAnalyzeCmd(client),
		newPapersCmd(client),
		newRunsCmd(client),
	)
	return root
}

func newCrawlCmd(client *apiClient) *cobra.Command {
	var source string
	var maxResults int

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Trigger a crawl run and wait for its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}
			if source != "" {
				body["source"] = source
			}
			if maxResults > 0 {
				body["max_results"] = maxResults
			}

			raw, err := client.do(http.MethodPost, "/api/v1/tasks/crawl", nil, body)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Crawl a single source (huggingface, arxiv)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Cap the number of papers fetched per source")
	return cmd
}

func newAnalyzeCmd(client *apiClient) *cobra.Command {
	var identity string
	var maxPapers int
	var force bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Trigger an analyze run and wait for its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{}
			if identity != "" {
				body["identity"] = identity
			}
			if maxPapers > 0 {
				body["max_papers"] = maxPapers
			}
			if force {
				body["force_regenerate"] = true
			}

			raw, err := client.do(http.MethodPost, "/api/v1/tasks/analyze", nil, body)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "Analyze a single paper by identity (e.g. arxiv:2501.12345)")
	cmd.Flags().IntVar(&maxPapers, "max-papers", 0, "Cap the number of papers analyzed")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate reports even for completed papers")
	return cmd
}

func newPapersCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "papers",
		Short: "Inspect discovered papers",
	}

	var status, source string
	var limit, offset int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if status != "" {
				query.Set("status", status)
			}
			if source != "" {
				query.Set("source", source)
			}
			if limit > 0 {
				query.Set("limit", fmt.Sprint(limit))
			}
			if offset > 0 {
				query.Set("offset", fmt.Sprint(offset))
			}

			raw, err := client.do(http.MethodGet, "/api/v1/papers", query, nil)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status (discovered, analyzing, completed, failed)")
	listCmd.Flags().StringVar(&source, "source", "", "Filter by source (huggingface, arxiv)")
	listCmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	getCmd := &cobra.Command{
		Use:   "get <id-or-identity>",
		Short: "Show a single paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client.do(http.MethodGet, "/api/v1/papers/"+url.PathEscape(args[0]), nil, nil)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	reportsCmd := &cobra.Command{
		Use:   "reports <id-or-identity>",
		Short: "List a paper's report history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client.do(http.MethodGet, "/api/v1/papers/"+url.PathEscape(args[0])+"/reports", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	cmd.AddCommand(listCmd, getCmd, reportsCmd)
	return cmd
}

func newRunsCmd(client *apiClient) *cobra.Command {
	var kind, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List task run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if kind != "" {
				query.Set("kind", kind)
			}
			if status != "" {
				query.Set("status", status)
			}
			if limit > 0 {
				query.Set("limit", fmt.Sprint(limit))
			}

			raw, err := client.do(http.MethodGet, "/api/v1/task-runs", query, nil)
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by run kind (crawl, analyze)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by run status (success, partial, failed, aborted)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	return cmd
}
