// Package firecrawl gathers documents through the Firecrawl search API, which
// searches and scrapes in a single request.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const (
	DefaultBaseURL = "https://api.firecrawl.dev"
	DefaultTimeout = 15 * time.Second
)

type Client struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

var _ search.Gatherer = (*Client)(nil)

type searchRequest struct {
	Query         string        `json:"query"`
	Limit         int           `json:"limit"`
	Timeout       int64         `json:"timeout,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type searchResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
	Error string `json:"error"`
}

// Gather runs a search and returns the scraped markdown of each result.
func (c *Client) Gather(ctx context.Context, query string, limit int) ([]search.Document, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	body, err := json.Marshal(searchRequest{
		Query:         query,
		Limit:         limit,
		Timeout:       timeout.Milliseconds(),
		ScrapeOptions: scrapeOptions{Formats: []string{"markdown"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", search.ErrSearchFailed, query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: query %q: status %d: %s", search.ErrSearchFailed, query, resp.StatusCode, string(msg))
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: query %q: decode response: %w", search.ErrSearchFailed, query, err)
	}
	if !raw.Success && raw.Error != "" {
		return nil, fmt.Errorf("%w: query %q: %s", search.ErrSearchFailed, query, raw.Error)
	}

	docs := make([]search.Document, 0, len(raw.Data))
	for _, item := range raw.Data {
		if item.URL == "" {
			continue
		}
		docs = append(docs, search.Document{URL: item.URL, Title: item.Title, Text: item.Markdown})
		if limit > 0 && len(docs) == limit {
			break
		}
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Search completed", "query", query, "count", len(docs), "provider", "firecrawl")
	return docs, nil
}
