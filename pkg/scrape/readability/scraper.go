// Package readability fetches pages over HTTP and extracts their main
// content.
package readability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const (
	DefaultUserAgent = "tiny-deep-research/1.0"
	// DefaultMaxBytes caps how much of a response body is read.
	DefaultMaxBytes = 5 << 20
)

type Scraper struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

var _ search.Scraper = (*Scraper)(nil)

func New() *Scraper {
	return &Scraper{Client: http.DefaultClient, UserAgent: DefaultUserAgent, MaxBytes: DefaultMaxBytes}
}

func (s *Scraper) Scrape(ctx context.Context, rawURL string) (search.Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: errors.New("invalid url")}
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}
	ua := s.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return search.Page{}, &search.ScrapeError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	page, err := Extract(io.LimitReader(resp.Body, limit), pageURL)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	page.StatusCode = resp.StatusCode
	return page, nil
}

// Extract runs readability over an HTML document.
func Extract(r io.Reader, pageURL *url.URL) (search.Page, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return search.Page{}, fmt.Errorf("extract content: %w", err)
	}
	return search.Page{
		URL:   pageURL.String(),
		Title: strings.TrimSpace(article.Title),
		Text:  strings.TrimSpace(article.TextContent),
	}, nil
}
