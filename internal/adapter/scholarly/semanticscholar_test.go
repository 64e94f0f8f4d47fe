package scholarly

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

const s2SearchBody = `{
  "total": 2,
  "data": [
    {
      "paperId": "abc123",
      "externalIds": {"DOI": "10.18653/v1/N19-1423"},
      "title": "BERT: Pre-training of Deep Bidirectional Transformers",
      "abstract": "We introduce a new language representation model called BERT.",
      "venue": "NAACL",
      "year": 2019,
      "citationCount": 70000,
      "url": "https://www.semanticscholar.org/paper/abc123",
      "authors": [{"name": "Jacob Devlin"}, {"name": ""}]
    },
    {
      "paperId": "def456",
      "externalIds": {},
      "title": "",
      "abstract": null,
      "venue": "",
      "year": 0,
      "citationCount": 0,
      "url": "",
      "authors": []
    }
  ]
}`

func TestSemanticScholarSearch(t *testing.T) {
	var gotPath, gotQuery, gotFields, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		gotFields = r.URL.Query().Get("fields")
		gotKey = r.Header.Get("x-api-key")
		_, _ = w.Write([]byte(s2SearchBody))
	}))
	defer srv.Close()

	c := NewSemanticScholar(config.Config{SemanticScholarBaseURL: srv.URL, SemanticScholarAPIKey: "s2-key"})
	papers, err := c.Search(context.Background(), "bidirectional transformers", 5)
	require.NoError(t, err)

	assert.Equal(t, "/paper/search", gotPath)
	assert.Equal(t, "bidirectional transformers", gotQuery)
	assert.Contains(t, gotFields, "citationCount")
	assert.Equal(t, "s2-key", gotKey)

	require.Len(t, papers, 1, "untitled entry dropped")
	p := papers[0]
	assert.Equal(t, "BERT: Pre-training of Deep Bidirectional Transformers", p.Title)
	assert.Equal(t, []string{"Jacob Devlin"}, p.Authors, "empty author names dropped")
	assert.Equal(t, 2019, p.Year)
	assert.Equal(t, "NAACL", p.Venue)
	assert.Equal(t, "10.18653/v1/N19-1423", p.DOI)
	assert.Equal(t, 70000, p.CitationCount)
	assert.Contains(t, p.AbstractSnip, "language representation model")
}

func TestSemanticScholarKeyOptional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"total": 0, "data": []}`))
	}))
	defer srv.Close()

	c := NewSemanticScholar(config.Config{SemanticScholarBaseURL: srv.URL})
	papers, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestSemanticScholarAbstractTruncated(t *testing.T) {
	long := strings.Repeat("attention ", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total": 1, "data": [{"title": "T", "abstract": "` + long + `", "authors": []}]}`))
	}))
	defer srv.Close()

	c := NewSemanticScholar(config.Config{SemanticScholarBaseURL: srv.URL})
	papers, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.LessOrEqual(t, len([]rune(papers[0].AbstractSnip)), 301)
}

func TestSemanticScholarRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewSemanticScholar(config.Config{SemanticScholarBaseURL: srv.URL})
	_, err := c.Search(context.Background(), "q", 1)
	require.Error(t, err)

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.ProviderSemanticScholar, pe.Provider)
	assert.Equal(t, domain.KindRateLimited, domain.Classify(err))
}
