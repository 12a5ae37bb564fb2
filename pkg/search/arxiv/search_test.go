package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Recursive
      Research Agents</title>
    <summary>  We study agents that recurse.  </summary>
    <published>2024-01-01T00:00:00Z</published>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v1</id>
    <title>No PDF Here</title>
    <summary>Abstract only.</summary>
    <link href="http://arxiv.org/abs/2401.00002v1" rel="alternate" type="text/html"/>
  </entry>
</feed>`

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:agents", r.URL.Query().Get("search_query"))
		assert.Equal(t, "3", r.URL.Query().Get("max_results"))
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	s := &Search{BaseURL: srv.URL, Client: srv.Client()}
	results, err := s.Search(context.Background(), "agents", 3)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://arxiv.org/pdf/2401.00001v1", results[0].URL)
	assert.Equal(t, "Recursive Research Agents", results[0].Title)
	assert.Equal(t, "We study agents that recurse.", results[0].Description)
	assert.Equal(t, "http://arxiv.org/abs/2401.00002v1", results[1].URL)
	assert.Equal(t, 2, results[1].Rank)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&Search{BaseURL: srv.URL, Client: srv.Client()}).Search(context.Background(), "x", 1)
	assert.ErrorContains(t, err, "503")
}
