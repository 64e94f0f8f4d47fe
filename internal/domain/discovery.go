package domain

import "time"

// DiscoverySource names one strategy for finding related papers.
type DiscoverySource string

const (
	SourceCitationNetwork    DiscoverySource = "citation_network"
	SourceAuthorNetwork      DiscoverySource = "author_network"
	SourceVenueNetwork       DiscoverySource = "venue_network"
	SourceSemanticSimilarity DiscoverySource = "semantic_similarity"
	SourceResearch           DiscoverySource = "research"
)

// DiscoverySources returns every known source in a stable order.
func DiscoverySources() []DiscoverySource {
	return []DiscoverySource{
		SourceCitationNetwork, SourceAuthorNetwork, SourceVenueNetwork,
		SourceSemanticSimilarity, SourceResearch,
	}
}

// Valid reports whether s names a known discovery source.
func (s DiscoverySource) Valid() bool {
	for _, known := range DiscoverySources() {
		if s == known {
			return true
		}
	}
	return false
}

// DiscoveryConfig controls one discovery run: which sources run, how many
// results each may contribute, and the overall deadline.
type DiscoveryConfig struct {
	EnabledSources  []DiscoverySource `json:"enabled_sources"`
	MaxPerSource    int               `json:"max_per_source"`
	MaxTotal        int               `json:"max_total"`
	MinRelevance    float64           `json:"min_relevance"`
	Timeout         time.Duration     `json:"timeout"`
	Parallel        bool              `json:"parallel"`
	EnableSynthesis bool              `json:"enable_synthesis"`
}

// Discovery presets. Comprehensive runs everything; fast trades breadth for
// latency; citations follows only the citation graph.
const (
	PresetComprehensive = "comprehensive"
	PresetFast          = "fast"
	PresetCitations     = "citations"
)

// DiscoveryPreset returns the named preset config, or ok=false for an
// unknown name.
func DiscoveryPreset(name string) (DiscoveryConfig, bool) {
	switch name {
	case PresetComprehensive:
		return DiscoveryConfig{
			EnabledSources:  DiscoverySources(),
			MaxPerSource:    10,
			MaxTotal:        20,
			MinRelevance:    0.3,
			Timeout:         90 * time.Second,
			Parallel:        true,
			EnableSynthesis: false,
		}, true
	case PresetFast:
		return DiscoveryConfig{
			EnabledSources:  []DiscoverySource{SourceCitationNetwork, SourceSemanticSimilarity},
			MaxPerSource:    5,
			MaxTotal:        10,
			MinRelevance:    0.4,
			Timeout:         30 * time.Second,
			Parallel:        true,
			EnableSynthesis: false,
		}, true
	case PresetCitations:
		return DiscoveryConfig{
			EnabledSources:  []DiscoverySource{SourceCitationNetwork},
			MaxPerSource:    15,
			MaxTotal:        15,
			MinRelevance:    0.3,
			Timeout:         45 * time.Second,
			Parallel:        false,
			EnableSynthesis: false,
		}, true
	}
	return DiscoveryConfig{}, false
}

// SeedPaper is the subject of a discovery run: the already-processed paper
// whose neighbourhood the sources explore.
type SeedPaper struct {
	PaperID   string     `json:"paper_id"`
	Title     string     `json:"title"`
	Abstract  string     `json:"abstract,omitempty"`
	Authors   []string   `json:"authors,omitempty"`
	Year      int        `json:"year,omitempty"`
	Venue     string     `json:"venue,omitempty"`
	DOI       string     `json:"doi,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// SourcePaper is one candidate emitted by a single discovery source before
// scoring and deduplication.
type SourcePaper struct {
	Title         string          `json:"title"`
	Authors       []string        `json:"authors,omitempty"`
	Year          int             `json:"year,omitempty"`
	Venue         string          `json:"venue,omitempty"`
	DOI           string          `json:"doi,omitempty"`
	URL           string          `json:"url,omitempty"`
	AbstractSnip  string          `json:"abstract_snippet,omitempty"`
	CitationCount int             `json:"citation_count,omitempty"`
	Source        DiscoverySource `json:"source"`
	Relationship  string          `json:"relationship,omitempty"`
}

// SourceReport records how one source fared inside a discovery run.
type SourceReport struct {
	Source    DiscoverySource `json:"source"`
	Found     int             `json:"found"`
	Kept      int             `json:"kept"`
	Duration  time.Duration   `json:"duration"`
	Err       string          `json:"error,omitempty"`
	TimedOut  bool            `json:"timed_out"`
	Discarded bool            `json:"discarded,omitempty"`
}

// DiscoveryResult is the outcome of one coordinator run.
type DiscoveryResult struct {
	SeedPaperID string            `json:"seed_paper_id"`
	Papers      []DiscoveredPaper `json:"papers"`
	Reports     []SourceReport    `json:"reports"`
	Synthesis   string            `json:"synthesis,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
}
