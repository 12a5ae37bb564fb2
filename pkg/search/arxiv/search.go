package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const DefaultBaseURL = "https://export.arxiv.org/api/query"

// Entry holds one arXiv Atom entry.
type Entry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Link      []Link `xml:"link"`
}

// Link is an arXiv entry link.
type Link struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// Feed is the Atom feed returned by the arXiv API.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Entry   []Entry  `xml:"entry"`
}

// Search queries the arXiv API. Results point at the paper PDF when one is
// listed, so they can be routed to a PDF scraper.
type Search struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

var _ search.Searcher = (*Search)(nil)

func (s *Search) Search(ctx context.Context, query string, count int) ([]search.Result, error) {
	if count <= 0 {
		count = 5
	}

	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(count))
	params.Add("start", "0")
	apiURL := base + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("API request made", "url", apiURL, "status", resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var feed Feed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	results := make([]search.Result, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := entryLink(entry)
		if link == "" {
			continue
		}
		results = append(results, search.Result{
			URL:         link,
			Title:       collapse(entry.Title),
			Description: collapse(entry.Summary),
			Rank:        len(results) + 1,
		})
		if len(results) == count {
			break
		}
	}
	return results, nil
}

func entryLink(e Entry) string {
	for _, link := range e.Link {
		if link.Type == "application/pdf" || link.Title == "pdf" {
			return strings.Replace(link.Href, "http://", "https://", 1)
		}
	}
	for _, link := range e.Link {
		if link.Rel == "alternate" {
			return link.Href
		}
	}
	return e.ID
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
