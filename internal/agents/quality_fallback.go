package agents

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

var (
	structureMarkers = []string{"abstract", "introduction", "method", "result", "discussion", "conclusion"}
	hedgingMarkers   = []string{"may ", "might ", "could ", "possibly", "perhaps", "appears to", "seems to", "arguably"}
	absolutistTerms  = []string{"always", "never", "undoubtedly", "certainly", "obviously", "unquestionably", "definitely", "proves that"}
)

// HeuristicQualityChecker scores content with text statistics only. It keeps
// the quality dimensions, weights and grading of the AI checker so callers
// read both results the same way.
type HeuristicQualityChecker struct{}

// NewHeuristicQualityChecker builds the offline quality fallback.
func NewHeuristicQualityChecker() *HeuristicQualityChecker {
	return &HeuristicQualityChecker{}
}

// Kind implements Agent.
func (h *HeuristicQualityChecker) Kind() domain.AgentKind { return domain.KindQualityChecker }

// Estimate implements Agent.
func (h *HeuristicQualityChecker) Estimate(domain.AgentTask) time.Duration { return 2 * time.Second }

// CanHandle implements Agent.
func (h *HeuristicQualityChecker) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindQualityChecker {
		return false
	}
	_, err := qualityInput(task.Input)
	return err == nil
}

// Execute implements Agent.
func (h *HeuristicQualityChecker) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := qualityInput(task.Input)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(in.Content)
	words := textx.WordCount(in.Content)
	sentences := splitSentences(in.Content)

	results := []CheckResult{
		h.structureCheck(lower),
		h.hedgingCheck(lower, words),
		h.absolutistCheck(lower, words),
		h.citationCheck(in.Content),
		h.readabilityCheck(words, len(sentences)),
	}

	overall := 0.0
	var issues []string
	for _, r := range results {
		overall += r.Weight * r.Score
		for _, iss := range r.Issues {
			issues = append(issues, r.Name+": "+iss)
		}
	}
	overall = clamp01(overall)
	observability.ObserveQualityScore(overall)

	return domain.Tree{
		"item_id":       in.ItemID,
		"check_type":    in.CheckType,
		"overall_score": overall,
		"grade":         qualityGrade(overall),
		"checks":        results,
		"issues":        issues,
		"method":        "heuristic",
	}, nil
}

// structureCheck maps accuracy onto document structure: content carrying the
// conventional paper sections gives claims somewhere to be checked against.
func (h *HeuristicQualityChecker) structureCheck(lower string) CheckResult {
	present := 0
	for _, m := range structureMarkers {
		if strings.Contains(lower, m) {
			present++
		}
	}
	r := CheckResult{
		Name:    "accuracy",
		Weight:  0.30,
		Score:   clamp01(0.4 + 0.1*float64(present)),
		Summary: fmt.Sprintf("%d of %d expected sections present", present, len(structureMarkers)),
	}
	if present < 2 {
		r.Issues = append(r.Issues, "content lacks the structure needed to verify claims against sources")
	}
	return r
}

func (h *HeuristicQualityChecker) hedgingCheck(lower string, words int) CheckResult {
	hits := 0
	for _, m := range hedgingMarkers {
		hits += strings.Count(lower, m)
	}
	density := per100Words(hits, words)
	r := CheckResult{
		Name:    "consistency",
		Weight:  0.20,
		Score:   clampRange(0.9-0.05*density, 0.3, 0.9),
		Summary: fmt.Sprintf("%.1f hedging terms per 100 words", density),
	}
	if density > 3 {
		r.Issues = append(r.Issues, "heavy hedging suggests the text does not commit to consistent claims")
	}
	return r
}

func (h *HeuristicQualityChecker) absolutistCheck(lower string, words int) CheckResult {
	hits := 0
	for _, m := range absolutistTerms {
		hits += strings.Count(lower, m)
	}
	density := per100Words(hits, words)
	r := CheckResult{
		Name:    "bias",
		Weight:  0.15,
		Score:   clampRange(0.9-0.1*density, 0.3, 0.9),
		Summary: fmt.Sprintf("%.1f absolutist terms per 100 words", density),
	}
	if density > 1 {
		r.Issues = append(r.Issues, "absolutist language suggests one-sided framing")
	}
	return r
}

// citationCheck maps hallucination risk onto citation presence: claims backed
// by references are less likely to be fabricated.
func (h *HeuristicQualityChecker) citationCheck(content string) CheckResult {
	count := len(numericCiteRe.FindAllString(content, -1)) +
		len(parentheticalCiteRe.FindAllString(content, -1)) +
		len(etAlCiteRe.FindAllString(content, -1))
	presence := float64(count) / 5
	if presence > 1 {
		presence = 1
	}
	r := CheckResult{
		Name:    "hallucination",
		Weight:  0.20,
		Score:   clamp01(0.5 + 0.5*presence),
		Summary: fmt.Sprintf("%d citation markers found", count),
	}
	if count == 0 {
		r.Issues = append(r.Issues, "no citations found to support claims")
	}
	return r
}

func (h *HeuristicQualityChecker) readabilityCheck(words, sentences int) CheckResult {
	if sentences == 0 {
		return CheckResult{
			Name:    "coherence",
			Weight:  0.15,
			Score:   0.4,
			Issues:  []string{"no complete sentences found"},
			Summary: "content has no sentence structure",
		}
	}
	avg := float64(words) / float64(sentences)
	outside := 0.0
	switch {
	case avg < 12:
		outside = 12 - avg
	case avg > 28:
		outside = avg - 28
	}
	r := CheckResult{
		Name:    "coherence",
		Weight:  0.15,
		Score:   clampRange(0.9-0.02*outside, 0.3, 0.9),
		Summary: fmt.Sprintf("average sentence length %.1f words", avg),
	}
	if avg > 40 {
		r.Issues = append(r.Issues, "very long sentences obscure the line of reasoning")
	}
	return r
}

func per100Words(hits, words int) float64 {
	if words == 0 {
		return 0
	}
	return float64(hits) / float64(words) * 100
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
