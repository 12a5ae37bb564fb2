// Package scrape composes scrapers: routing by document type and caching
// successful fetches.
package scrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

// Router sends PDF URLs to the PDF scraper and everything else to the HTML
// scraper. A nil PDF scraper routes all URLs to HTML.
type Router struct {
	HTML search.Scraper
	PDF  search.Scraper
}

var _ search.Scraper = Router{}

func (r Router) Scrape(ctx context.Context, rawURL string) (search.Page, error) {
	if r.PDF != nil && IsPDF(rawURL) {
		return r.PDF.Scrape(ctx, rawURL)
	}
	return r.HTML.Scrape(ctx, rawURL)
}

// IsPDF reports whether a URL points at a PDF document.
func IsPDF(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".pdf") {
		return true
	}
	return strings.HasSuffix(u.Hostname(), "arxiv.org") && strings.HasPrefix(path, "/pdf/")
}
