package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/scholarly"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/retry"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// maxNetworkAuthors bounds how many of the seed's authors the author network
// fans out to.
const maxNetworkAuthors = 3

// CitationSource walks the citation neighbourhood on Crossref: works citing
// the seed's DOI, plus a bibliographic keyword search built from the title.
type CitationSource struct {
	crossref *scholarly.Crossref
	exec     *retry.Executor
}

// NewCitationSource builds the citation network source.
func NewCitationSource(cr *scholarly.Crossref, exec *retry.Executor) *CitationSource {
	return &CitationSource{crossref: cr, exec: exec}
}

func (s *CitationSource) Name() domain.DiscoverySource { return domain.SourceCitationNetwork }

// Find queries both legs; one leg failing only loses that leg's candidates.
func (s *CitationSource) Find(ctx domain.Context, seed domain.SeedPaper, limit int) ([]domain.SourcePaper, error) {
	var out []domain.SourcePaper
	var errs []error

	if seed.DOI != "" {
		papers, err := s.search(ctx, seed.DOI, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("doi leg: %w", err))
		}
		for i := range papers {
			papers[i].Relationship = "cites"
		}
		out = append(out, papers...)
	}

	if kw := titleKeywords(seed.Title); kw != "" {
		papers, err := s.search(ctx, kw, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("keyword leg: %w", err))
		}
		for i := range papers {
			if papers[i].Relationship == "" {
				papers[i].Relationship = "related"
			}
		}
		out = append(out, papers...)
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *CitationSource) search(ctx domain.Context, query string, rows int) ([]domain.SourcePaper, error) {
	var papers []domain.SourcePaper
	_, err := s.exec.Do(ctx, domain.ProviderCrossref, func(ctx domain.Context) error {
		var err error
		papers, err = s.crossref.SearchBibliographic(ctx, query, rows)
		return err
	})
	return papers, err
}

// AuthorSource fetches other works by up to three of the seed's authors.
type AuthorSource struct {
	crossref *scholarly.Crossref
	exec     *retry.Executor
}

// NewAuthorSource builds the author network source.
func NewAuthorSource(cr *scholarly.Crossref, exec *retry.Executor) *AuthorSource {
	return &AuthorSource{crossref: cr, exec: exec}
}

func (s *AuthorSource) Name() domain.DiscoverySource { return domain.SourceAuthorNetwork }

func (s *AuthorSource) Find(ctx domain.Context, seed domain.SeedPaper, limit int) ([]domain.SourcePaper, error) {
	authors := seed.Authors
	if len(authors) > maxNetworkAuthors {
		authors = authors[:maxNetworkAuthors]
	}
	if len(authors) == 0 {
		return nil, nil
	}

	var out []domain.SourcePaper
	var errs []error
	for _, author := range authors {
		var papers []domain.SourcePaper
		_, err := s.exec.Do(ctx, domain.ProviderCrossref, func(ctx domain.Context) error {
			var err error
			papers, err = s.crossref.SearchByAuthor(ctx, author, limit)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("author %q: %w", author, err))
			continue
		}
		for i := range papers {
			papers[i].Relationship = "same_author"
		}
		out = append(out, papers...)
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// VenueSource fetches other works from the seed's journal or proceedings.
type VenueSource struct {
	crossref *scholarly.Crossref
	exec     *retry.Executor
}

// NewVenueSource builds the venue network source.
func NewVenueSource(cr *scholarly.Crossref, exec *retry.Executor) *VenueSource {
	return &VenueSource{crossref: cr, exec: exec}
}

func (s *VenueSource) Name() domain.DiscoverySource { return domain.SourceVenueNetwork }

func (s *VenueSource) Find(ctx domain.Context, seed domain.SeedPaper, limit int) ([]domain.SourcePaper, error) {
	if seed.Venue == "" {
		return nil, nil
	}
	var papers []domain.SourcePaper
	_, err := s.exec.Do(ctx, domain.ProviderCrossref, func(ctx domain.Context) error {
		var err error
		papers, err = s.crossref.SearchByVenue(ctx, seed.Venue, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range papers {
		papers[i].Relationship = "same_venue"
	}
	return papers, nil
}

// SimilaritySource runs a relevance search on Semantic Scholar using the
// seed's title and a slice of its abstract.
type SimilaritySource struct {
	s2   *scholarly.SemanticScholar
	exec *retry.Executor
}

// NewSimilaritySource builds the semantic similarity source.
func NewSimilaritySource(s2 *scholarly.SemanticScholar, exec *retry.Executor) *SimilaritySource {
	return &SimilaritySource{s2: s2, exec: exec}
}

func (s *SimilaritySource) Name() domain.DiscoverySource { return domain.SourceSemanticSimilarity }

func (s *SimilaritySource) Find(ctx domain.Context, seed domain.SeedPaper, limit int) ([]domain.SourcePaper, error) {
	query := seed.Title
	if seed.Abstract != "" {
		query = textx.CollapseWhitespace(seed.Title + " " + textx.TruncateRunes(seed.Abstract, 200))
	}

	var papers []domain.SourcePaper
	_, err := s.exec.Do(ctx, domain.ProviderSemanticScholar, func(ctx domain.Context) error {
		var err error
		papers, err = s.s2.Search(ctx, query, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range papers {
		papers[i].Relationship = "similar"
	}
	return papers, nil
}

// ResearchSource asks a web-research AI provider for related work in natural
// language and parses the structured answer.
type ResearchSource struct {
	client domain.ProviderClient
	exec   *retry.Executor
}

// NewResearchSource builds the open-ended research source.
func NewResearchSource(client domain.ProviderClient, exec *retry.Executor) *ResearchSource {
	return &ResearchSource{client: client, exec: exec}
}

func (s *ResearchSource) Name() domain.DiscoverySource { return domain.SourceResearch }

type researchPaper struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    int      `json:"year"`
	Venue   string   `json:"venue"`
	DOI     string   `json:"doi"`
	URL     string   `json:"url"`
}

func (s *ResearchSource) Find(ctx domain.Context, seed domain.SeedPaper, limit int) ([]domain.SourcePaper, error) {
	system := "You are an academic research assistant. Respond with JSON only, no prose."
	user := fmt.Sprintf(
		"Find up to %d published academic papers closely related to the paper titled %q.",
		limit, seed.Title)
	if seed.Abstract != "" {
		user += " Abstract: " + textx.TruncateRunes(seed.Abstract, 500)
	}
	user += ` Respond with a JSON array of objects with fields: "title", "authors" (array of strings), "year" (integer), "venue", "doi", "url". Omit papers you are not sure exist.`

	var raw string
	_, err := s.exec.Do(ctx, domain.ProviderPerplexity, func(ctx domain.Context) error {
		var err error
		raw, err = s.client.Call(ctx, domain.ChatPrompt{System: system, User: user, MaxTokens: 2000})
		return err
	})
	if err != nil {
		return nil, err
	}

	cleaned, err := ai.CleanJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("op=discovery.research: %w", err)
	}
	var found []researchPaper
	if err := json.Unmarshal([]byte(cleaned), &found); err != nil {
		return nil, fmt.Errorf("op=discovery.research: decode papers: %w", domain.ErrParse)
	}

	papers := make([]domain.SourcePaper, 0, len(found))
	for _, p := range found {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		papers = append(papers, domain.SourcePaper{
			Title:        p.Title,
			Authors:      p.Authors,
			Year:         p.Year,
			Venue:        p.Venue,
			DOI:          p.DOI,
			URL:          p.URL,
			Relationship: "research",
		})
	}
	return papers, nil
}

// researchStopwords are dropped when deriving a keyword query from a title.
var researchStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "on": {}, "in": {}, "for": {},
	"with": {}, "and": {}, "or": {}, "to": {}, "from": {}, "by": {}, "at": {},
	"is": {}, "are": {}, "via": {}, "using": {}, "toward": {}, "towards": {},
	"into": {}, "based": {},
}

// titleKeywords reduces a title to its content words for bibliographic search.
func titleKeywords(title string) string {
	fields := strings.Fields(textx.NormalizeTitle(title))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := researchStopwords[f]; stop {
			continue
		}
		keywords = append(keywords, f)
		if len(keywords) == 8 {
			break
		}
	}
	return strings.Join(keywords, " ")
}
