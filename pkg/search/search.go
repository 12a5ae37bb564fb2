// Package search defines the search and scrape collaborators used by the
// research engine and the manager that combines them.
package search

import (
	"context"
	"errors"
	"fmt"
)

// ErrSearchFailed marks a failure of the search provider itself, as opposed
// to a search that found nothing.
var ErrSearchFailed = errors.New("search failed")

// Result represents a single ranked search result.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rank        int    `json:"rank"`
}

// Page is the cleaned content of one scraped URL.
type Page struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code"`
}

// Document is a search result together with whatever text could be fetched
// for it. Text is empty when scraping failed.
type Document struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Searcher returns ranked results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// Scraper returns the cleaned text behind a URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (Page, error)
}

// Gatherer searches and fetches content for a query in one step. An empty
// slice with a nil error means nothing was found; a non-nil error means the
// collaborator failed.
type Gatherer interface {
	Gather(ctx context.Context, query string, limit int) ([]Document, error)
}

// ScrapeError reports a failed fetch of a single URL.
type ScrapeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ScrapeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scrape %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("scrape %s: %v", e.URL, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// ScraperFunc adapts a function to Scraper.
type ScraperFunc func(ctx context.Context, url string) (Page, error)

func (f ScraperFunc) Scrape(ctx context.Context, url string) (Page, error) { return f(ctx, url) }

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, count int) ([]Result, error)

func (f SearcherFunc) Search(ctx context.Context, query string, count int) ([]Result, error) {
	return f(ctx, query, count)
}
