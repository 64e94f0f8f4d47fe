package agents

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// Claim scoring weights. A sentence scores once per category; penalties pull
// boilerplate and run-on sentences back below the cut.
const (
	findingWeight      = 4
	statisticalWeight  = 3
	quantitativeWeight = 3
	comparativeWeight  = 2
	certaintyWeight    = 2

	backgroundPenalty  = 2
	methodologyPenalty = 3
	futureWorkPenalty  = 2
	lengthPenalty      = 2

	claimScoreThreshold = 3
	maxClaims           = 5
	longClaimChars      = 200
	maxClaimClauses     = 3
)

var (
	findingMarkers = []string{
		"we found", "we observed", "we show", "we demonstrate", "our results",
		"results show", "results indicate", "findings suggest", "we conclude",
		"this study shows", "the data show", "evidence suggests",
	}
	statisticalMarkers = []string{
		"significant", "p<", "p <", "p=", "p =", "confidence interval",
		"correlation", "regression", "effect size", "standard deviation",
	}
	comparativeMarkers = []string{
		"outperform", "better than", "worse than", "compared to", "compared with",
		"superior to", "inferior to", "higher than", "lower than", "exceeds",
	}
	certaintyMarkers = []string{
		"clearly", "definitively", "conclusively", "strongly", "robustly",
		"consistently", "always", "never",
	}
	backgroundMarkers = []string{
		"previous work", "prior studies", "it is known", "it is well known",
		"has been shown", "literature suggests", "researchers have",
	}
	methodologyMarkers = []string{
		"we used", "we applied", "we collected", "was measured", "were measured",
		"participants were", "the dataset", "we trained", "the protocol",
	}
	futureWorkMarkers = []string{
		"future work", "future research", "further study", "further research",
		"remains to be", "should be explored", "should be investigated",
	}
)

var (
	quantRe    = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:%|percent|fold|times|×)`)
	sentenceRe = regexp.MustCompile(`[.!?]\s+`)
)

// ScoredClaim is a sentence believed to state a verifiable result.
type ScoredClaim struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// ScoreClaim scores a single sentence. Each category contributes at most
// once regardless of how many of its markers match.
func ScoreClaim(sentence string) int {
	s := strings.ToLower(sentence)
	score := 0
	if containsAny(s, findingMarkers) {
		score += findingWeight
	}
	if containsAny(s, statisticalMarkers) {
		score += statisticalWeight
	}
	if quantRe.MatchString(s) {
		score += quantitativeWeight
	}
	if containsAny(s, comparativeMarkers) {
		score += comparativeWeight
	}
	if containsAny(s, certaintyMarkers) {
		score += certaintyWeight
	}
	if containsAny(s, backgroundMarkers) {
		score -= backgroundPenalty
	}
	if containsAny(s, methodologyMarkers) {
		score -= methodologyPenalty
	}
	if containsAny(s, futureWorkMarkers) {
		score -= futureWorkPenalty
	}
	if utf8.RuneCountInString(sentence) > longClaimChars || clauseCount(sentence) > maxClaimClauses {
		score -= lengthPenalty
	}
	return score
}

// ExtractClaims pulls the highest-scoring claim sentences out of free text,
// best first, at most max entries.
func ExtractClaims(text string, max int) []ScoredClaim {
	if max <= 0 {
		max = maxClaims
	}
	var claims []ScoredClaim
	for _, s := range splitSentences(text) {
		if score := ScoreClaim(s); score >= claimScoreThreshold {
			claims = append(claims, ScoredClaim{Text: s, Score: score})
		}
	}
	sort.SliceStable(claims, func(i, j int) bool { return claims[i].Score > claims[j].Score })
	if len(claims) > max {
		claims = claims[:max]
	}
	return claims
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.Split(text, -1) {
		s = textx.CollapseWhitespace(s)
		if utf8.RuneCountInString(s) >= 20 {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func clauseCount(s string) int {
	return 1 + strings.Count(s, ",") + strings.Count(s, ";")
}
