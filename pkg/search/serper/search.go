package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

// DefaultBaseURL is the serper.dev Google search endpoint.
const DefaultBaseURL = "https://google.serper.dev/search"

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *http.Client
}

var _ search.Searcher = Search{}

type request struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type response struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic"`
}

func (s Search) Search(ctx context.Context, query string, count int) ([]search.Result, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	body, err := json.Marshal(request{Q: query, Num: count})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(msg))
	}

	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]search.Result, 0, len(raw.Organic))
	for i, item := range raw.Organic {
		if count > 0 && i >= count {
			break
		}
		rank := item.Position
		if rank == 0 {
			rank = i + 1
		}
		out = append(out, search.Result{Title: item.Title, URL: item.Link, Description: item.Snippet, Rank: rank})
	}
	return out, nil
}
