package discovery

import (
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// Relevance weights. Candidates start at the base and earn the rest from
// citation count, recency, author overlap and venue match; the sum is capped
// at 1.
const (
	relevanceBase      = 0.5
	citationWeight     = 0.3
	citationSaturation = 1000
	recencyWeight      = 0.2
	recencyWindowYears = 5
	authorWeight       = 0.2
	venueWeight        = 0.1
)

// relevance scores one candidate against the seed paper.
func relevance(seed domain.SeedPaper, c domain.SourcePaper, now time.Time) float64 {
	score := relevanceBase

	cc := c.CitationCount
	if cc > citationSaturation {
		cc = citationSaturation
	}
	if cc > 0 {
		score += citationWeight * float64(cc) / citationSaturation
	}

	if c.Year > 0 {
		age := now.Year() - c.Year
		if age < 0 {
			age = 0
		}
		if age <= recencyWindowYears {
			score += recencyWeight * (1 - float64(age)/recencyWindowYears)
		}
	}

	score += authorWeight * authorOverlap(seed.Authors, c.Authors)

	if c.Venue != "" && seed.Venue != "" &&
		textx.NormalizeTitle(c.Venue) == textx.NormalizeTitle(seed.Venue) {
		score += venueWeight
	}

	if score > 1 {
		score = 1
	}
	return score
}

// authorOverlap returns the overlap coefficient of the two author lists,
// comparing by normalized family name so "A. Vaswani" and "Ashish Vaswani"
// count as the same person.
func authorOverlap(seed, candidate []string) float64 {
	if len(seed) == 0 || len(candidate) == 0 {
		return 0
	}
	seedNames := make(map[string]struct{}, len(seed))
	for _, a := range seed {
		if n := familyName(a); n != "" {
			seedNames[n] = struct{}{}
		}
	}
	if len(seedNames) == 0 {
		return 0
	}

	shared := 0
	seen := make(map[string]struct{}, len(candidate))
	for _, a := range candidate {
		n := familyName(a)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := seedNames[n]; ok {
			shared++
		}
	}
	denom := len(seedNames)
	if len(seen) < denom {
		denom = len(seen)
	}
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom)
}

func familyName(author string) string {
	fields := strings.Fields(textx.NormalizeTitle(author))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// viable filters out candidates that cannot be results: untitled entries and
// the seed paper itself, matched by DOI first and normalized title second.
func viable(seed domain.SeedPaper, c domain.SourcePaper) bool {
	if strings.TrimSpace(c.Title) == "" {
		return false
	}
	if c.DOI != "" && seed.DOI != "" && strings.EqualFold(c.DOI, seed.DOI) {
		return false
	}
	if textx.NormalizeTitle(c.Title) == textx.NormalizeTitle(seed.Title) {
		return false
	}
	return true
}

// dedupKey identifies a paper across sources: DOI when present, normalized
// title otherwise.
func dedupKey(c domain.SourcePaper) string {
	if c.DOI != "" {
		return "doi:" + strings.ToLower(c.DOI)
	}
	return "title:" + textx.NormalizeTitle(c.Title)
}
