package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdndev/tiny-deep-research/pkg/search"
)

func TestGather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "solid state batteries", req.Query)
		assert.Equal(t, 2, req.Limit)
		assert.Equal(t, []string{"markdown"}, req.ScrapeOptions.Formats)

		fmt.Fprint(w, `{"success":true,"data":[
			{"url":"https://a.example","title":"A","markdown":"# A body"},
			{"url":"","title":"skipped"},
			{"url":"https://b.example","title":"B","markdown":""}
		]}`)
	}))
	defer srv.Close()

	c := &Client{APIKey: "key", BaseURL: srv.URL, Client: srv.Client()}
	docs, err := c.Gather(context.Background(), "solid state batteries", 2)

	require.NoError(t, err)
	assert.Equal(t, []search.Document{
		{URL: "https://a.example", Title: "A", Text: "# A body"},
		{URL: "https://b.example", Title: "B"},
	}, docs)
}

func TestGatherFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payment required", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Client: srv.Client()}
	_, err := c.Gather(context.Background(), "q", 5)

	assert.ErrorIs(t, err, search.ErrSearchFailed)
}

func TestGatherEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()

	docs, err := (&Client{BaseURL: srv.URL, Client: srv.Client()}).Gather(context.Background(), "q", 5)

	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}
