// Package scholarly implements HTTP clients for bibliographic APIs.
//
// Like the AI clients, these are single-shot: one request per call, failures
// returned as tagged *domain.ProviderError so the retry executor can
// classify them.
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
)

const scholarlyTimeout = 30 * time.Second

// Crossref queries the Crossref works API.
type Crossref struct {
	baseURL string
	// mailto joins the Crossref polite pool, which gets better rate limits.
	mailto string
	hc     *http.Client
}

// NewCrossref returns a Crossref client.
func NewCrossref(cfg config.Config) *Crossref {
	return &Crossref{
		baseURL: cfg.CrossrefBaseURL,
		mailto:  cfg.CrossrefMailto,
		hc:      &http.Client{Timeout: scholarlyTimeout},
	}
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefWork struct {
	DOI            string           `json:"DOI"`
	Title          []string         `json:"title"`
	Author         []crossrefAuthor `json:"author"`
	ContainerTitle []string         `json:"container-title"`
	Published      struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published"`
	URL                 string `json:"URL"`
	IsReferencedByCount int    `json:"is-referenced-by-count"`
}

type crossrefResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

// SearchBibliographic queries works by free-text bibliographic match: titles,
// DOIs and citation strings all resolve through this one query field.
func (c *Crossref) SearchBibliographic(ctx context.Context, query string, rows int) ([]domain.SourcePaper, error) {
	return c.works(ctx, url.Values{"query.bibliographic": {query}}, rows)
}

// SearchByAuthor queries works by author name.
func (c *Crossref) SearchByAuthor(ctx context.Context, author string, rows int) ([]domain.SourcePaper, error) {
	return c.works(ctx, url.Values{"query.author": {author}}, rows)
}

// SearchByVenue queries works published in the named journal or proceedings.
func (c *Crossref) SearchByVenue(ctx context.Context, venue string, rows int) ([]domain.SourcePaper, error) {
	return c.works(ctx, url.Values{"query.container-title": {venue}}, rows)
}

func (c *Crossref) works(ctx context.Context, params url.Values, rows int) ([]domain.SourcePaper, error) {
	if rows <= 0 {
		rows = 10
	}
	params.Set("rows", strconv.Itoa(rows))
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("op=scholarly.works: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.RecordProviderCall(string(domain.ProviderCrossref), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderCrossref, 0, domain.KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.RecordProviderCall(string(domain.ProviderCrossref), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderCrossref, 0, domain.KindTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		observability.RecordProviderCall(string(domain.ProviderCrossref), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderCrossref, resp.StatusCode, domain.KindFromStatus(resp.StatusCode),
			fmt.Errorf("works query failed"))
	}

	var out crossrefResponse
	if err := json.Unmarshal(body, &out); err != nil {
		observability.RecordProviderCall(string(domain.ProviderCrossref), "error", time.Since(start))
		return nil, domain.NewProviderError(domain.ProviderCrossref, resp.StatusCode, domain.KindNonRetryable,
			fmt.Errorf("decode response: %w", err))
	}
	observability.RecordProviderCall(string(domain.ProviderCrossref), "success", time.Since(start))

	papers := make([]domain.SourcePaper, 0, len(out.Message.Items))
	for _, w := range out.Message.Items {
		if len(w.Title) == 0 || w.Title[0] == "" {
			continue
		}
		papers = append(papers, domain.SourcePaper{
			Title:         w.Title[0],
			Authors:       authorNames(w.Author),
			Year:          publishedYear(w.Published.DateParts),
			Venue:         first(w.ContainerTitle),
			DOI:           w.DOI,
			URL:           w.URL,
			CitationCount: w.IsReferencedByCount,
		})
	}
	return papers, nil
}

func authorNames(authors []crossrefAuthor) []string {
	if len(authors) == 0 {
		return nil
	}
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		switch {
		case a.Given != "" && a.Family != "":
			names = append(names, a.Given+" "+a.Family)
		case a.Family != "":
			names = append(names, a.Family)
		case a.Given != "":
			names = append(names, a.Given)
		}
	}
	return names
}

func publishedYear(dateParts [][]int) int {
	if len(dateParts) == 0 || len(dateParts[0]) == 0 {
		return 0
	}
	return dateParts[0][0]
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
