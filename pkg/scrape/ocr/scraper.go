// Package ocr extracts the text of PDF documents with the Mistral OCR API.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1/ocr"
	DefaultModel   = "mistral-ocr-latest"
)

var ErrMissingAPIKey = errors.New("MISTRAL_API_KEY is not set")

type page struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type response struct {
	Pages []page `json:"pages"`
}

type document struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type request struct {
	Model    string   `json:"model"`
	Document document `json:"document"`
}

type Scraper struct {
	APIKey  string
	BaseURL string
	Model   string
	Client  *http.Client
}

var _ search.Scraper = (*Scraper)(nil)

// Scrape sends the document URL to the OCR endpoint and joins the markdown of
// every page.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (search.Page, error) {
	if s.APIKey == "" {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: ErrMissingAPIKey}
	}
	docURL := strings.Replace(rawURL, "http://", "https://", 1)

	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	model := s.Model
	if model == "" {
		model = DefaultModel
	}

	jsonBody, err := json.Marshal(request{
		Model:    model,
		Document: document{Type: "document_url", DocumentURL: docURL},
	})
	if err != nil {
		return search.Page{}, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(jsonBody))
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return search.Page{}, &search.ScrapeError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("OCR request failed: %s", string(body)),
		}
	}

	var ocr response
	if err := json.Unmarshal(body, &ocr); err != nil {
		return search.Page{}, &search.ScrapeError{URL: rawURL, Err: fmt.Errorf("failed to unmarshal OCR response: %w", err)}
	}

	var sb strings.Builder
	for _, p := range ocr.Pages {
		fmt.Fprintf(&sb, "- Page %d -\n", p.Index)
		sb.WriteString(p.Markdown)
		sb.WriteString("\n\n")
	}
	return search.Page{URL: rawURL, Text: strings.TrimSpace(sb.String()), StatusCode: resp.StatusCode}, nil
}
