package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wdndev/tiny-deep-research/pkg/fanout"
	"github.com/wdndev/tiny-deep-research/pkg/metrics"
)

const (
	DefaultMaxConcurrentScrapes = 5
	DefaultScrapeTimeout        = 15 * time.Second
)

// Manager searches with a Searcher and scrapes every result with a Scraper,
// running at most MaxConcurrentScrapes fetches at once.
type Manager struct {
	Searcher             Searcher
	Scraper              Scraper
	MaxConcurrentScrapes int
	ScrapeTimeout        time.Duration
	Logger               *slog.Logger
	Metrics              *metrics.Metrics
}

// NewManager creates a manager with default limits.
func NewManager(searcher Searcher, scraper Scraper) *Manager {
	return &Manager{
		Searcher:             searcher,
		Scraper:              scraper,
		MaxConcurrentScrapes: DefaultMaxConcurrentScrapes,
		ScrapeTimeout:        DefaultScrapeTimeout,
		Logger:               slog.Default(),
	}
}

var _ Gatherer = (*Manager)(nil)

// Gather searches for query and scrapes up to limit results. Documents come
// back in rank order; a result whose scrape failed keeps its URL with empty
// text. Only a failed search is returned as an error.
func (m *Manager) Gather(ctx context.Context, query string, limit int) ([]Document, error) {
	logger := m.logger()

	results, err := m.Searcher.Search(ctx, query, limit)
	if err != nil {
		logger.Error("Search failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w: query %q: %w", ErrSearchFailed, query, err)
	}

	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		filtered = append(filtered, r)
		if limit > 0 && len(filtered) == limit {
			break
		}
	}
	logger.Info("Search completed", "query", query, "count", len(filtered))

	docs := make([]Document, len(filtered))
	if m.Scraper == nil {
		for i, r := range filtered {
			docs[i] = Document{URL: r.URL, Title: r.Title, Text: r.Description}
		}
		return docs, nil
	}

	tasks := make([]fanout.Task[Page], len(filtered))
	for i, r := range filtered {
		tasks[i] = func(ctx context.Context) (Page, error) {
			if m.ScrapeTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, m.ScrapeTimeout)
				defer cancel()
			}
			return m.Scraper.Scrape(ctx, r.URL)
		}
	}

	pages := fanout.Run(ctx, m.MaxConcurrentScrapes, tasks)
	for i, r := range filtered {
		doc := Document{URL: r.URL, Title: r.Title}
		if res := pages[i]; res.Err != nil {
			logger.Warn("Scrape failed", "url", r.URL, "query", query, "error", res.Err)
			m.Metrics.ScrapeDone(false)
		} else {
			doc.Text = res.Value.Text
			if doc.Title == "" {
				doc.Title = res.Value.Title
			}
			m.Metrics.ScrapeDone(true)
		}
		docs[i] = doc
	}
	return docs, nil
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
