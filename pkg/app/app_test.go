package app

import (
	"log/slog"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdndev/tiny-deep-research/pkg/config"
	"github.com/wdndev/tiny-deep-research/pkg/scrape"
	"github.com/wdndev/tiny-deep-research/pkg/scrape/browser"
	"github.com/wdndev/tiny-deep-research/pkg/scrape/readability"
	"github.com/wdndev/tiny-deep-research/pkg/search"
	"github.com/wdndev/tiny-deep-research/pkg/search/arxiv"
	"github.com/wdndev/tiny-deep-research/pkg/search/brave"
	"github.com/wdndev/tiny-deep-research/pkg/search/duckduckgo"
	"github.com/wdndev/tiny-deep-research/pkg/search/firecrawl"
	"github.com/wdndev/tiny-deep-research/pkg/search/serper"
	"github.com/wdndev/tiny-deep-research/pkg/tokens"
)

func TestNewSearcher(t *testing.T) {
	tests := []struct {
		provider string
		key      string
		want     any
	}{
		{"", "", &duckduckgo.Search{}},
		{"duckduckgo", "", &duckduckgo.Search{}},
		{"brave", "k", brave.Search{}},
		{"serper", "k", serper.Search{}},
		{"arxiv", "", &arxiv.Search{}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			s, err := NewSearcher(config.SearchConfig{Provider: tt.provider, APIKey: tt.key})
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}

	_, err := NewSearcher(config.SearchConfig{Provider: "brave"})
	assert.ErrorContains(t, err, "SEARCH_API_KEY")
	_, err = NewSearcher(config.SearchConfig{Provider: "altavista"})
	assert.ErrorContains(t, err, "unknown search provider")
}

func TestNewScraper(t *testing.T) {
	s, err := NewScraper(config.SearchConfig{Scraper: "http", ScrapeTimeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &readability.Scraper{}, s)

	s, err = NewScraper(config.SearchConfig{Scraper: "browser"})
	require.NoError(t, err)
	assert.IsType(t, browser.Scraper{}, s)

	s, err = NewScraper(config.SearchConfig{Scraper: "http", MistralAPIKey: "m"})
	require.NoError(t, err)
	assert.IsType(t, scrape.Router{}, s)

	_, err = NewScraper(config.SearchConfig{Scraper: "curl"})
	assert.Error(t, err)
}

func testApp(cfg *config.Config) *App {
	return &App{
		Config:   cfg,
		Counter:  tokens.CounterFunc(utf8.RuneCountInString),
		Logger:   slog.New(slog.DiscardHandler),
		Searcher: &arxiv.Search{},
	}
}

func TestEngineUsesConfig(t *testing.T) {
	cfg := &config.Config{
		ContentTokenBudget: 1000,
		Search:             config.SearchConfig{Limit: 7, ScrapeConcurrency: 2, ScrapeTimeout: time.Second},
	}
	a := testApp(cfg)
	e := a.Engine(nil)

	assert.Equal(t, 7, e.Config.SearchLimit)
	m, ok := e.Gatherer.(*search.Manager)
	require.True(t, ok)
	assert.Equal(t, 2, m.MaxConcurrentScrapes)
	assert.Equal(t, time.Second, m.ScrapeTimeout)
}

func TestEngineUsesGatherer(t *testing.T) {
	a := testApp(&config.Config{})
	a.Gatherer = &firecrawl.Client{}

	assert.Same(t, a.Gatherer, a.Engine(nil).Gatherer)
}

func TestReportWriterContextSize(t *testing.T) {
	a := testApp(&config.Config{ContextSize: 5000})
	assert.Equal(t, 5000, a.ReportWriter(nil).ContextSize)
	assert.NoError(t, a.Close())
}
