package agents

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/scholarly"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// MetadataEnhancer verifies a paper's bibliographic fields against Crossref
// and asks an AI provider for subject tags. Verification is best-effort; the
// tag suggestion is the call that decides success.
type MetadataEnhancer struct {
	core     *Core
	crossref *scholarly.Crossref
	tags     domain.TagRepository
}

// NewMetadataEnhancer builds the enhancer agent.
func NewMetadataEnhancer(core *Core, crossref *scholarly.Crossref, tags domain.TagRepository) *MetadataEnhancer {
	return &MetadataEnhancer{core: core, crossref: crossref, tags: tags}
}

// Kind implements Agent.
func (e *MetadataEnhancer) Kind() domain.AgentKind { return domain.KindMetadataEnhancer }

// Estimate implements Agent.
func (e *MetadataEnhancer) Estimate(domain.AgentTask) time.Duration { return 20 * time.Second }

// CanHandle implements Agent.
func (e *MetadataEnhancer) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindMetadataEnhancer {
		return false
	}
	_, err := enhancerInput(task.Input)
	return err == nil
}

type enhancerInputs struct {
	PaperID string
	Title   string
	DOI     string
	Authors []string
	Mode    string
}

func enhancerInput(in domain.Tree) (enhancerInputs, error) {
	paperID, err := in.RequiredString("paperId")
	if err != nil {
		return enhancerInputs{}, err
	}
	title, err := in.RequiredString("title")
	if err != nil {
		return enhancerInputs{}, err
	}
	return enhancerInputs{
		PaperID: paperID,
		Title:   title,
		DOI:     in.String("doi", ""),
		Authors: in.StringList("authors"),
		Mode:    in.Enum("enhancementType", "full", "keywords", "categories", "summary_tags", "full"),
	}, nil
}

// Execute implements Agent.
func (e *MetadataEnhancer) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := enhancerInput(task.Input)
	if err != nil {
		return nil, err
	}
	log := observability.LoggerFromContext(ctx)

	verification, err := e.verify(ctx, in)
	if err != nil {
		log.Warn("metadata verification skipped",
			slog.String("paper_id", in.PaperID), slog.Any("error", err))
	}

	tags, err := e.suggestTags(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := e.tags.ReplaceByPaperID(ctx, in.PaperID, tags); err != nil {
		log.Error("persist tags failed",
			slog.String("paper_id", in.PaperID), slog.Any("error", err))
	}

	return domain.Tree{
		"paper_id":         in.PaperID,
		"enhancement_type": in.Mode,
		"verification":     verification,
		"tags":             tags,
	}, nil
}

// verify searches Crossref for the paper and grades how well the best hit
// matches the supplied metadata.
func (e *MetadataEnhancer) verify(ctx domain.Context, in enhancerInputs) (domain.MetadataVerification, error) {
	var works []domain.SourcePaper
	err := e.core.Do(ctx, domain.ProviderCrossref, func(ctx domain.Context) error {
		var searchErr error
		works, searchErr = e.crossref.SearchBibliographic(ctx, in.Title, 5)
		return searchErr
	})
	if err != nil {
		return domain.MetadataVerification{PaperID: in.PaperID, CheckedAt: time.Now().UTC()}, err
	}

	v := domain.MetadataVerification{
		PaperID:        in.PaperID,
		DOI:            in.DOI,
		CheckedAt:      time.Now().UTC(),
		EnhancerSource: "crossref",
	}
	best, score := bestCrossrefMatch(in, works)
	if best == nil {
		return v, nil
	}
	v.TitleMatch = textx.NormalizeTitle(best.Title) == textx.NormalizeTitle(in.Title)
	v.VerifiedTitle = best.Title
	v.VerifiedYear = best.Year
	v.VerifiedVenue = best.Venue
	v.Authors = best.Authors
	v.CitationCount = best.CitationCount
	v.CrossrefScore = score
	if in.DOI == "" && best.DOI != "" {
		v.DOI = best.DOI
		v.FieldsAmended = append(v.FieldsAmended, "doi")
	}
	if len(in.Authors) == 0 && len(best.Authors) > 0 {
		v.FieldsAmended = append(v.FieldsAmended, "authors")
	}
	return v, nil
}

// bestCrossrefMatch picks the hit with the strongest claim on the input
// metadata: DOI identity, then exact normalized title, then word overlap.
func bestCrossrefMatch(in enhancerInputs, works []domain.SourcePaper) (*domain.SourcePaper, float64) {
	wantTitle := textx.NormalizeTitle(in.Title)
	var best *domain.SourcePaper
	bestScore := 0.0
	for i := range works {
		w := &works[i]
		score := titleOverlap(wantTitle, textx.NormalizeTitle(w.Title))
		if in.DOI != "" && strings.EqualFold(in.DOI, w.DOI) {
			return w, 1.0
		}
		if textx.NormalizeTitle(w.Title) == wantTitle {
			score = 0.9
		}
		if score > bestScore {
			best, bestScore = w, score
		}
	}
	if bestScore < 0.5 {
		return nil, 0
	}
	return best, bestScore
}

// titleOverlap is the fraction of a's words also present in b.
func titleOverlap(a, b string) float64 {
	aw := strings.Fields(a)
	if len(aw) == 0 {
		return 0
	}
	bw := make(map[string]bool, len(aw))
	for _, w := range strings.Fields(b) {
		bw[w] = true
	}
	hits := 0
	for _, w := range aw {
		if bw[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(aw))
}

func (e *MetadataEnhancer) suggestTags(ctx domain.Context, in enhancerInputs) ([]domain.PaperTag, error) {
	var b strings.Builder
	b.WriteString("Review the paper metadata below and suggest tags for subject indexing")
	switch in.Mode {
	case "keywords":
		b.WriteString(", focusing on technical keywords")
	case "categories":
		b.WriteString(", focusing on broad subject categories")
	case "summary_tags":
		b.WriteString(", focusing on short descriptive phrases")
	}
	b.WriteString(".\n")
	b.WriteString(`Respond with a JSON object: {"tags": [{"tag": string, "confidence": number}]}.`)
	b.WriteString("\n\nTitle: ")
	b.WriteString(in.Title)
	if len(in.Authors) > 0 {
		b.WriteString("\nAuthors: ")
		b.WriteString(strings.Join(in.Authors, ", "))
	}
	if in.DOI != "" {
		b.WriteString("\nDOI: ")
		b.WriteString(in.DOI)
	}

	var parsed struct {
		Tags []struct {
			Tag        string  `json:"tag"`
			Confidence float64 `json:"confidence"`
		} `json:"tags"`
	}
	if err := e.core.CallProviderJSON(ctx, domain.ProviderOpenAI, domain.ChatPrompt{
		System: analysisSystemPrompt,
		User:   b.String(),
	}, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Tags) == 0 {
		return nil, fmt.Errorf("response carried no tags: %w", domain.ErrParse)
	}

	seen := make(map[string]bool, len(parsed.Tags))
	out := make([]domain.PaperTag, 0, len(parsed.Tags))
	for _, t := range parsed.Tags {
		tag := strings.ToLower(strings.TrimSpace(t.Tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, domain.PaperTag{
			PaperID:    in.PaperID,
			Tag:        tag,
			Confidence: clamp01(t.Confidence),
			Source:     string(domain.ProviderOpenAI),
		})
	}
	return out, nil
}
