package scholarly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// searchFields is the projection requested from the paper search endpoint.
const searchFields = "title,abstract,authors,year,venue,externalIds,citationCount,url"

// SemanticScholar queries the Semantic Scholar graph API.
type SemanticScholar struct {
	baseURL string
	// apiKey is optional; keyless callers share a much smaller quota.
	apiKey string
	hc     *http.Client
}

// NewSemanticScholar returns a Semantic Scholar client.
func NewSemanticScholar(cfg config.Config) *SemanticScholar {
	return &SemanticScholar{
		baseURL: cfg.SemanticScholarBaseURL,
		apiKey:  cfg.SemanticScholarAPIKey,
		hc:      &http.Client{Timeout: scholarlyTimeout},
	}
}

type s2Paper struct {
	PaperID     string `json:"paperId"`
	ExternalIDs struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Venue         string `json:"venue"`
	Year          int    `json:"year"`
	CitationCount int    `json:"citationCount"`
	URL           string `json:"url"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

type s2SearchResponse struct {
	Total int       `json:"total"`
	Data  []s2Paper `json:"data"`
}

// Search runs a relevance-ranked paper search for the query.
func (c *SemanticScholar) Search(ctx context.Context, query string, limit int) ([]domain.SourcePaper, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {searchFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/paper/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("op=scholarly.Search: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.RecordProviderCall(string(domain.ProviderSemanticScholar), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderSemanticScholar, 0, domain.KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.RecordProviderCall(string(domain.ProviderSemanticScholar), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderSemanticScholar, 0, domain.KindTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		observability.RecordProviderCall(string(domain.ProviderSemanticScholar), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderSemanticScholar, resp.StatusCode, domain.KindFromStatus(resp.StatusCode),
			fmt.Errorf("paper search failed"))
	}

	var out s2SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		observability.RecordProviderCall(string(domain.ProviderSemanticScholar), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderSemanticScholar, resp.StatusCode, domain.KindNonRetryable,
			fmt.Errorf("decode response: %w", err))
	}
	observability.RecordProviderCall(string(domain.ProviderSemanticScholar), "success", time.Since(start))

	papers := make([]domain.SourcePaper, 0, len(out.Data))
	for _, p := range out.Data {
		if p.Title == "" {
			continue
		}
		authors := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		papers = append(papers, domain.SourcePaper{
			Title:         p.Title,
			Authors:       authors,
			Year:          p.Year,
			Venue:         p.Venue,
			DOI:           p.ExternalIDs.DOI,
			URL:           p.URL,
			AbstractSnip:  textx.TruncateRunes(p.Abstract, 300),
			CitationCount: p.CitationCount,
		})
	}
	return papers, nil
}
