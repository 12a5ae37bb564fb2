// Package duckduckgo searches the keyless DuckDuckGo HTML endpoint.
package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const DefaultBaseURL = "https://html.duckduckgo.com/html/"

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

type Search struct {
	BaseURL string
	Region  string // e.g. "us-en"; empty means no region
	Client  *http.Client
}

func New() *Search {
	return &Search{
		BaseURL: DefaultBaseURL,
		Client:  &http.Client{Timeout: 20 * time.Second},
	}
}

var _ search.Searcher = (*Search)(nil)

func (s *Search) Search(ctx context.Context, query string, count int) ([]search.Result, error) {
	params := url.Values{}
	params.Set("q", query)
	if s.Region != "" {
		params.Set("kl", s.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("duckduckgo returned status %d: %s", resp.StatusCode, string(body))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}
	return parseResults(doc, count), nil
}

// parseResults collects organic results from a results page, skipping ads.
func parseResults(doc *html.Node, count int) []search.Result {
	var results []search.Result

	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if count > 0 && len(results) >= count {
			return false
		}
		if n.Type == html.ElementNode && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := parseResult(n); ok {
				r.Rank = len(results) + 1
				results = append(results, r)
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	return results
}

func parseResult(n *html.Node) (search.Result, bool) {
	link := find(n, "result__a")
	if link == nil {
		return search.Result{}, false
	}
	target := resolveLink(attr(link, "href"))
	if target == "" {
		return search.Result{}, false
	}

	r := search.Result{URL: target, Title: text(link)}
	if snippet := find(n, "result__snippet"); snippet != nil {
		r.Description = text(snippet)
	}
	return r, true
}

// resolveLink unwraps DuckDuckGo's redirect links ("//duckduckgo.com/l/?uddg=...").
func resolveLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func find(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func (s *Search) baseURL() string {
	if s.BaseURL == "" {
		return DefaultBaseURL
	}
	return s.BaseURL
}

func (s *Search) client() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}
