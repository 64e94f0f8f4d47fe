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

// summaryTargets maps the requested depth to an approximate word budget.
var summaryTargets = map[string]int{
	"brief":    100,
	"standard": 250,
	"detailed": 500,
}

// ContentSummarizer produces a summary of paper text at a requested depth.
// The same implementation backs the primary agent and the Ollama fallback;
// they differ only in provider and labeling.
type ContentSummarizer struct {
	core      *Core
	summaries domain.SummaryRepository
	provider  domain.Provider
	fallback  bool
}

// NewContentSummarizer builds the primary, Anthropic-backed summarizer.
func NewContentSummarizer(core *Core, summaries domain.SummaryRepository) *ContentSummarizer {
	return &ContentSummarizer{core: core, summaries: summaries, provider: domain.ProviderAnthropic}
}

// NewFallbackSummarizer builds the Ollama-backed summarizer registered as
// the local fallback.
func NewFallbackSummarizer(core *Core, summaries domain.SummaryRepository) *ContentSummarizer {
	return &ContentSummarizer{core: core, summaries: summaries, provider: domain.ProviderOllama, fallback: true}
}

// Kind implements Agent.
func (s *ContentSummarizer) Kind() domain.AgentKind { return domain.KindContentSummarizer }

// Estimate implements Agent.
func (s *ContentSummarizer) Estimate(task domain.AgentTask) time.Duration {
	if task.Input.Enum("summaryType", "standard", "brief", "standard", "detailed") == "detailed" {
		return 45 * time.Second
	}
	return 25 * time.Second
}

// CanHandle implements Agent.
func (s *ContentSummarizer) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindContentSummarizer {
		return false
	}
	_, err := summarizerInput(task.Input)
	return err == nil
}

type summarizerInputs struct {
	PaperID string
	Text    string
	Depth   string
}

func summarizerInput(in domain.Tree) (summarizerInputs, error) {
	paperID, err := in.RequiredString("paperId")
	if err != nil {
		return summarizerInputs{}, err
	}
	text, err := in.RequiredString("textContent")
	if err != nil {
		return summarizerInputs{}, err
	}
	return summarizerInputs{
		PaperID: paperID,
		Text:    text,
		Depth:   in.Enum("summaryType", "standard", "brief", "standard", "detailed"),
	}, nil
}

// Execute implements Agent.
func (s *ContentSummarizer) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := summarizerInput(task.Input)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Summary    string   `json:"summary"`
		Highlights []string `json:"highlights"`
	}
	if err := s.core.CallProviderJSON(ctx, s.provider, summarizerPrompt(in), &parsed); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(parsed.Summary)
	if text == "" {
		return nil, fmt.Errorf("response carried no summary: %w", domain.ErrParse)
	}

	summary := domain.Summary{
		PaperID:    in.PaperID,
		Depth:      in.Depth,
		Audience:   "general",
		Text:       text,
		WordCount:  textx.WordCount(text),
		Provider:   s.provider,
		Fallback:   s.fallback,
		CreatedAt:  time.Now().UTC(),
		Highlights: parsed.Highlights,
	}
	if err := s.summaries.Upsert(ctx, summary); err != nil {
		observability.LoggerFromContext(ctx).Error("persist summary failed",
			slog.String("paper_id", in.PaperID), slog.Any("error", err))
	}

	return domain.Tree{
		"paper_id":     in.PaperID,
		"summary":      summary.Text,
		"highlights":   summary.Highlights,
		"word_count":   summary.WordCount,
		"summary_type": in.Depth,
		"provider":     string(s.provider),
	}, nil
}

func summarizerPrompt(in summarizerInputs) domain.ChatPrompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the paper text below in about %d words; this is a %s summary of the paper for a general audience. Include the main highlights.\n", summaryTargets[in.Depth], in.Depth)
	b.WriteString(`Respond with a JSON object: {"summary": string, "highlights": [string]}.`)
	b.WriteString("\n\nText:\n")
	b.WriteString(textx.TruncateRunes(in.Text, maxPromptRunes))
	return domain.ChatPrompt{System: analysisSystemPrompt, User: b.String()}
}
