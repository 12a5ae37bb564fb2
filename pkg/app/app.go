// Package app wires configuration into the research components shared by
// the CLI and the server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tmc/langchaingo/llms"

	"github.com/wdndev/tiny-deep-research/pkg/clients"
	"github.com/wdndev/tiny-deep-research/pkg/config"
	"github.com/wdndev/tiny-deep-research/pkg/metrics"
	"github.com/wdndev/tiny-deep-research/pkg/research"
	"github.com/wdndev/tiny-deep-research/pkg/scrape"
	"github.com/wdndev/tiny-deep-research/pkg/scrape/browser"
	"github.com/wdndev/tiny-deep-research/pkg/scrape/ocr"
	"github.com/wdndev/tiny-deep-research/pkg/scrape/readability"
	"github.com/wdndev/tiny-deep-research/pkg/search"
	"github.com/wdndev/tiny-deep-research/pkg/search/arxiv"
	"github.com/wdndev/tiny-deep-research/pkg/search/brave"
	"github.com/wdndev/tiny-deep-research/pkg/search/duckduckgo"
	"github.com/wdndev/tiny-deep-research/pkg/search/firecrawl"
	"github.com/wdndev/tiny-deep-research/pkg/search/serper"
	"github.com/wdndev/tiny-deep-research/pkg/tokens"
)

// App holds the long-lived collaborators. Engines and writers are built per
// run so each run can log to its own logger.
type App struct {
	Config  *config.Config
	Model   llms.Model
	Counter tokens.Counter
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Searcher and Scraper feed a search.Manager; Gatherer replaces both
	// when the provider searches and scrapes in one call.
	Searcher search.Searcher
	Scraper  search.Scraper
	Gatherer search.Gatherer

	cache *scrape.RedisCache
}

// New creates the model, token counter and search stack from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	model, err := clients.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM: %w", err)
	}

	a := &App{
		Config:  cfg,
		Model:   model,
		Counter: tokens.NewCounter(tokens.DefaultEncoding, cfg.LLM.Model, logger),
		Metrics: m,
		Logger:  logger,
	}

	if cfg.Search.Provider == "firecrawl" {
		a.Gatherer = &firecrawl.Client{
			APIKey:  cfg.Search.FirecrawlAPIKey,
			BaseURL: cfg.Search.FirecrawlBaseURL,
			Timeout: cfg.Search.ScrapeTimeout,
			Logger:  logger,
		}
		return a, nil
	}

	a.Searcher, err = NewSearcher(cfg.Search)
	if err != nil {
		return nil, err
	}
	a.Scraper, err = NewScraper(cfg.Search)
	if err != nil {
		return nil, err
	}
	if cfg.Search.RedisURL != "" {
		cache, err := scrape.NewRedisCache(ctx, cfg.Search.RedisURL)
		if err != nil {
			logger.Warn("Scrape cache disabled", "error", err)
		} else {
			a.cache = cache
			a.Scraper = &scrape.Cached{Scraper: a.Scraper, Cache: cache, TTL: cfg.Search.CacheTTL, Logger: logger}
		}
	}
	return a, nil
}

// NewSearcher returns the search provider named in cfg.
func NewSearcher(cfg config.SearchConfig) (search.Searcher, error) {
	switch cfg.Provider {
	case "", "duckduckgo", "ddgs":
		return duckduckgo.New(), nil
	case "brave":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("search provider brave requires SEARCH_API_KEY")
		}
		return brave.Search{ApiKey: cfg.APIKey}, nil
	case "serper", "google":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("search provider serper requires SEARCH_API_KEY")
		}
		return serper.Search{ApiKey: cfg.APIKey}, nil
	case "arxiv":
		return &arxiv.Search{}, nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}

// NewScraper returns the HTML scraper named in cfg, routing PDFs to OCR when
// a Mistral key is configured.
func NewScraper(cfg config.SearchConfig) (search.Scraper, error) {
	var html search.Scraper
	switch cfg.Scraper {
	case "", "http":
		s := readability.New()
		s.Client = &http.Client{Timeout: cfg.ScrapeTimeout}
		html = s
	case "browser", "chromedp":
		html = browser.Scraper{}
	default:
		return nil, fmt.Errorf("unknown scraper %q", cfg.Scraper)
	}
	if cfg.MistralAPIKey == "" {
		return html, nil
	}
	return scrape.Router{HTML: html, PDF: &ocr.Scraper{APIKey: cfg.MistralAPIKey}}, nil
}

func (a *App) llm(logger *slog.Logger) *research.LLM {
	l := research.NewLLM(a.Model)
	l.Logger = logger
	l.Metrics = a.Metrics
	return l
}

func (a *App) trimmer() *tokens.Trimmer {
	return tokens.NewTrimmer(a.Counter)
}

func (a *App) gatherer(logger *slog.Logger) search.Gatherer {
	if a.Gatherer != nil {
		return a.Gatherer
	}
	m := search.NewManager(a.Searcher, a.Scraper)
	m.Logger = logger
	m.Metrics = a.Metrics
	if a.Config.Search.ScrapeConcurrency > 0 {
		m.MaxConcurrentScrapes = a.Config.Search.ScrapeConcurrency
	}
	if a.Config.Search.ScrapeTimeout > 0 {
		m.ScrapeTimeout = a.Config.Search.ScrapeTimeout
	}
	return m
}

// Engine builds a research engine logging to logger.
func (a *App) Engine(logger *slog.Logger) *research.Engine {
	if logger == nil {
		logger = a.Logger
	}
	l := a.llm(logger)
	extractor := research.NewExtractor(l, a.trimmer())
	if a.Config.ContentTokenBudget > 0 {
		extractor.ContentBudget = a.Config.ContentTokenBudget
	}

	e := research.NewEngine(research.NewPlanner(l), extractor, a.gatherer(logger))
	e.Logger = logger
	e.Metrics = a.Metrics
	if a.Config.Search.Limit > 0 {
		e.Config.SearchLimit = a.Config.Search.Limit
	}
	return e
}

func (a *App) ReportWriter(logger *slog.Logger) *research.ReportWriter {
	if logger == nil {
		logger = a.Logger
	}
	w := research.NewReportWriter(a.llm(logger), a.trimmer())
	if a.Config.ContextSize > 0 {
		w.ContextSize = a.Config.ContextSize
	}
	return w
}

func (a *App) Feedback(logger *slog.Logger) *research.Feedback {
	if logger == nil {
		logger = a.Logger
	}
	return research.NewFeedback(a.llm(logger))
}

// Close releases the scrape cache connection.
func (a *App) Close() error {
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}
