// Package browser renders pages in headless Chrome before extracting their
// main content, for sites that build their content with JavaScript.
package browser

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/wdndev/tiny-deep-research/pkg/scrape/readability"
	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const DefaultUserAgent = "Mozilla/5.0 (compatible; tiny-deep-research/1.0)"

type Scraper struct {
	UserAgent string
	// MaxChars truncates the extracted text when positive.
	MaxChars int
}

var _ search.Scraper = Scraper{}

func (s Scraper) Scrape(ctx context.Context, rawURL string) (search.Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: errors.New("invalid url")}
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}

	html, err := s.fetchHTML(ctx, rawURL)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}

	page, err := readability.Extract(strings.NewReader(html), pageURL)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}
	if s.MaxChars > 0 {
		if r := []rune(page.Text); len(r) > s.MaxChars {
			page.Text = string(r[:s.MaxChars])
		}
	}
	page.StatusCode = 200
	return page, nil
}

func (s Scraper) fetchHTML(ctx context.Context, rawURL string) (string, error) {
	ua := s.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(ua),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
