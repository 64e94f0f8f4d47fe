package domain

import "time"

// PaperContent is the structured form of a paper produced by the paper
// processor: sections, citations and key findings extracted from the raw
// document.
type PaperContent struct {
	PaperID     string         `json:"paper_id"`
	Title       string         `json:"title"`
	Abstract    string         `json:"abstract,omitempty"`
	Sections    []PaperSection `json:"sections,omitempty"`
	Citations   []Citation     `json:"citations,omitempty"`
	KeyFindings []string       `json:"key_findings,omitempty"`
}

// PaperSection is one titled block of the document body.
type PaperSection struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Citation pairs the raw reference string with its structured fields. The raw
// text travels inside the structured record so downstream formatting never
// has to re-match structured entries against a separate raw list by position.
type Citation struct {
	Index   int             `json:"index"`
	RawText string          `json:"raw_text"`
	Title   string          `json:"title,omitempty"`
	Authors []string        `json:"authors,omitempty"`
	Year    int             `json:"year,omitempty"`
	Venue   string          `json:"venue,omitempty"`
	DOI     string          `json:"doi,omitempty"`
	URL     string          `json:"url,omitempty"`
	Checked *CitationRecord `json:"checked,omitempty"`
}

// CitationRecord is the result of verifying one citation against a scholarly
// index.
type CitationRecord struct {
	Verified      bool    `json:"verified"`
	MatchedDOI    string  `json:"matched_doi,omitempty"`
	MatchedTitle  string  `json:"matched_title,omitempty"`
	Confidence    float64 `json:"confidence"`
	CitationCount int     `json:"citation_count,omitempty"`
	Source        string  `json:"source,omitempty"`
}

// Summary is one generated summary of a paper at a given depth and audience.
type Summary struct {
	PaperID    string    `json:"paper_id"`
	Depth      string    `json:"depth"`
	Audience   string    `json:"audience"`
	Text       string    `json:"text"`
	WordCount  int       `json:"word_count"`
	Provider   Provider  `json:"provider"`
	Fallback   bool      `json:"fallback"`
	CreatedAt  time.Time `json:"created_at"`
	Highlights []string  `json:"highlights,omitempty"`
}

// MetadataVerification is the metadata enhancer's verdict about a paper's
// bibliographic fields checked against Crossref.
type MetadataVerification struct {
	PaperID        string    `json:"paper_id"`
	DOI            string    `json:"doi,omitempty"`
	VerifiedTitle  string    `json:"verified_title,omitempty"`
	VerifiedYear   int       `json:"verified_year,omitempty"`
	VerifiedVenue  string    `json:"verified_venue,omitempty"`
	Authors        []string  `json:"authors,omitempty"`
	CitationCount  int       `json:"citation_count,omitempty"`
	TitleMatch     bool      `json:"title_match"`
	FieldsAmended  []string  `json:"fields_amended,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
	CrossrefScore  float64   `json:"crossref_score,omitempty"`
	EnhancerSource string    `json:"enhancer_source,omitempty"`
}

// PaperTag is one subject tag attached to a paper by the metadata enhancer.
type PaperTag struct {
	PaperID    string  `json:"paper_id"`
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// DiscoveredPaper is one related paper surfaced by the discovery coordinator,
// scored for relevance and attributed to the sources that found it.
type DiscoveredPaper struct {
	PaperID        string    `json:"paper_id"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors,omitempty"`
	Year           int       `json:"year,omitempty"`
	Venue          string    `json:"venue,omitempty"`
	DOI            string    `json:"doi,omitempty"`
	URL            string    `json:"url,omitempty"`
	AbstractSnip   string    `json:"abstract_snippet,omitempty"`
	CitationCount  int       `json:"citation_count,omitempty"`
	Relevance      float64   `json:"relevance"`
	Sources        []string  `json:"sources"`
	Relationship   string    `json:"relationship,omitempty"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	SeedPaperID    string    `json:"seed_paper_id"`
	SeedPaperTitle string    `json:"seed_paper_title,omitempty"`
}

// Paper repositories (ports)

// PaperContentRepository persists structured paper content. ReplaceByPaperID
// is transactional: re-running the processor for a paper swaps the stored
// content atomically instead of accreting duplicates.
type PaperContentRepository interface {
	ReplaceByPaperID(ctx Context, content PaperContent) error
	FindByPaperID(ctx Context, paperID string) (PaperContent, error)
}

// SummaryRepository persists generated summaries keyed by paper, depth and
// audience.
type SummaryRepository interface {
	Upsert(ctx Context, s Summary) error
	FindByPaperID(ctx Context, paperID string) ([]Summary, error)
}

// DiscoveryRepository persists discovered related papers. ReplaceByPaperID
// swaps the full set for a seed paper in one transaction.
type DiscoveryRepository interface {
	ReplaceByPaperID(ctx Context, seedPaperID string, papers []DiscoveredPaper) error
	FindByPaperID(ctx Context, seedPaperID string) ([]DiscoveredPaper, error)
}

// TagRepository persists subject tags for a paper.
type TagRepository interface {
	ReplaceByPaperID(ctx Context, paperID string, tags []PaperTag) error
	FindByPaperID(ctx Context, paperID string) ([]PaperTag, error)
}
