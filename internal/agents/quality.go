package agents

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// qualityCheck is one dimension of the quality assessment. Weights sum to 1.
type qualityCheck struct {
	name   string
	weight float64
	focus  string
}

var qualityChecks = []qualityCheck{
	{"accuracy", 0.30, "factual accuracy against the source material; flag unsupported statements"},
	{"consistency", 0.20, "internal consistency; flag claims that contradict each other"},
	{"bias", 0.15, "bias; flag loaded language and one-sided framing"},
	{"hallucination", 0.20, "hallucination; flag fabricated entities, citations or numbers"},
	{"coherence", 0.15, "logical coherence; flag reasoning gaps and non sequiturs"},
}

// CheckResult is the outcome of one quality dimension.
type CheckResult struct {
	Name     string   `json:"name"`
	Weight   float64  `json:"weight"`
	Score    float64  `json:"score"`
	Issues   []string `json:"issues"`
	Summary  string   `json:"summary"`
	Degraded bool     `json:"degraded,omitempty"`
}

// QualityChecker scores content on five dimensions in parallel and folds
// them into a weighted overall score with a letter grade.
type QualityChecker struct {
	core *Core
}

// NewQualityChecker builds the AI-backed quality checker.
func NewQualityChecker(core *Core) *QualityChecker {
	return &QualityChecker{core: core}
}

// Kind implements Agent.
func (q *QualityChecker) Kind() domain.AgentKind { return domain.KindQualityChecker }

// Estimate implements Agent.
func (q *QualityChecker) Estimate(task domain.AgentTask) time.Duration {
	switch task.Input.String("checkType", "standard") {
	case "basic":
		return 15 * time.Second
	case "detailed":
		return 45 * time.Second
	case "comprehensive":
		return 60 * time.Second
	default:
		return 30 * time.Second
	}
}

// CanHandle implements Agent.
func (q *QualityChecker) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindQualityChecker {
		return false
	}
	_, err := qualityInput(task.Input)
	return err == nil
}

type qualityTask struct {
	ItemID    string
	Content   string
	CheckType string
}

func qualityInput(in domain.Tree) (qualityTask, error) {
	t := qualityTask{
		ItemID:    in.String("itemId", in.String("paperId", "")),
		Content:   in.String("content", in.String("textContent", "")),
		CheckType: in.String("checkType", "standard"),
	}
	if t.ItemID == "" {
		return t, fmt.Errorf("missing itemId: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(t.Content) == "" {
		return t, fmt.Errorf("missing content: %w", domain.ErrInvalidInput)
	}
	switch t.CheckType {
	case "basic", "standard", "detailed", "comprehensive":
	default:
		return t, fmt.Errorf("unknown checkType %q: %w", t.CheckType, domain.ErrInvalidInput)
	}
	return t, nil
}

// Execute implements Agent. A sub-check that fails permanently degrades to a
// neutral score instead of sinking the whole assessment; retryable failures
// abort, since every dimension would hit the same unavailable provider.
func (q *QualityChecker) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := qualityInput(task.Input)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, len(qualityChecks))
	fns := make([]func(domain.Context) error, len(qualityChecks))
	for i, check := range qualityChecks {
		fns[i] = func(ctx domain.Context) error {
			res, err := q.runCheck(ctx, check, in)
			if err != nil {
				if domain.Classify(err).Retryable() {
					return fmt.Errorf("%s check: %w", check.name, err)
				}
				observability.LoggerFromContext(ctx).Warn("quality check degraded to neutral score",
					slog.String("check", check.name), slog.Any("error", err))
				res = CheckResult{
					Name:     check.name,
					Weight:   check.weight,
					Score:    0.5,
					Issues:   []string{fmt.Sprintf("%s check unavailable: %v", check.name, err)},
					Summary:  "check did not complete",
					Degraded: true,
				}
			}
			results[i] = res
			return nil
		}
	}
	if err := RunParallel(ctx, len(fns), fns); err != nil {
		return nil, err
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
	}, nil
}

func (q *QualityChecker) runCheck(ctx domain.Context, check qualityCheck, in qualityTask) (CheckResult, error) {
	prompt := fmt.Sprintf(`Assess the quality of the content below at %s depth, focusing on %s.
Score strictly between 0 and 1, where 1 is flawless.

Respond with JSON:
{"score": number, "issues": [string], "summary": string}

Content:
%s`, in.CheckType, check.focus, textx.TruncateRunes(in.Content, maxPromptRunes))

	var parsed struct {
		Score   float64  `json:"score"`
		Issues  []string `json:"issues"`
		Summary string   `json:"summary"`
	}
	if err := q.core.CallProviderJSON(ctx, domain.ProviderAnthropic, domain.ChatPrompt{
		System: analysisSystemPrompt,
		User:   prompt,
	}, &parsed); err != nil {
		return CheckResult{}, err
	}
	return CheckResult{
		Name:    check.name,
		Weight:  check.weight,
		Score:   clamp01(parsed.Score),
		Issues:  parsed.Issues,
		Summary: parsed.Summary,
	}, nil
}

func qualityGrade(score float64) string {
	switch {
	case score >= 0.9:
		return "A"
	case score >= 0.8:
		return "B"
	case score >= 0.7:
		return "C"
	case score >= 0.6:
		return "D"
	default:
		return "F"
	}
}
