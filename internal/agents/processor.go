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

// PaperProcessor turns a raw document into structured paper content:
// sections, citations and key findings, persisted for downstream agents.
type PaperProcessor struct {
	core *Core
	repo domain.PaperContentRepository
}

// NewPaperProcessor builds the processor agent.
func NewPaperProcessor(core *Core, repo domain.PaperContentRepository) *PaperProcessor {
	return &PaperProcessor{core: core, repo: repo}
}

// Kind implements Agent.
func (p *PaperProcessor) Kind() domain.AgentKind { return domain.KindPaperProcessor }

// Estimate implements Agent.
func (p *PaperProcessor) Estimate(task domain.AgentTask) time.Duration {
	switch task.Input.Enum("processingMode", "standard", "basic", "standard", "detailed", "full") {
	case "basic":
		return 15 * time.Second
	case "detailed", "full":
		return time.Minute
	default:
		return 30 * time.Second
	}
}

// CanHandle implements Agent.
func (p *PaperProcessor) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindPaperProcessor {
		return false
	}
	_, err := processorInput(task.Input)
	return err == nil
}

type processorInputs struct {
	PaperID string
	Content string
	Mode    string
}

func processorInput(in domain.Tree) (processorInputs, error) {
	paperID, err := in.RequiredString("paperId")
	if err != nil {
		return processorInputs{}, err
	}
	content := in.String("rawContent", in.String("textContent", ""))
	if strings.TrimSpace(content) == "" {
		return processorInputs{}, fmt.Errorf("missing rawContent or textContent: %w", domain.ErrInvalidInput)
	}
	return processorInputs{
		PaperID: paperID,
		Content: content,
		Mode:    in.Enum("processingMode", "standard", "basic", "standard", "detailed", "full"),
	}, nil
}

// Execute implements Agent.
func (p *PaperProcessor) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := processorInput(task.Input)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Title       string                `json:"title"`
		Abstract    string                `json:"abstract"`
		Sections    []domain.PaperSection `json:"sections"`
		Citations   []domain.Citation     `json:"citations"`
		KeyFindings []string              `json:"key_findings"`
	}
	if err := p.core.CallProviderJSON(ctx, domain.ProviderOpenAI, processorPrompt(in), &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return nil, fmt.Errorf("response carried no title: %w", domain.ErrParse)
	}

	content := domain.PaperContent{
		PaperID:     in.PaperID,
		Title:       strings.TrimSpace(parsed.Title),
		Abstract:    strings.TrimSpace(parsed.Abstract),
		Sections:    parsed.Sections,
		Citations:   sequenceCitations(parsed.Citations),
		KeyFindings: parsed.KeyFindings,
	}
	if err := p.repo.ReplaceByPaperID(ctx, content); err != nil {
		observability.LoggerFromContext(ctx).Error("persist paper content failed",
			slog.String("paper_id", in.PaperID), slog.Any("error", err))
	}

	return domain.Tree{
		"paper_id":        in.PaperID,
		"title":           content.Title,
		"abstract":        content.Abstract,
		"sections":        content.Sections,
		"citations":       content.Citations,
		"key_findings":    content.KeyFindings,
		"processing_mode": in.Mode,
	}, nil
}

func processorPrompt(in processorInputs) domain.ChatPrompt {
	var b strings.Builder
	b.WriteString("Extract the structure of the following academic paper at ")
	b.WriteString(in.Mode)
	b.WriteString(" depth. Identify the title, abstract, sections and citations, and list the key findings.\n")
	b.WriteString(`Respond with a JSON object: {"title": string, "abstract": string, "sections": [{"index": int, "title": string, "content": string}], "citations": [{"index": int, "raw_text": string}], "key_findings": [string]}.`)
	b.WriteString("\n\nPaper:\n")
	b.WriteString(textx.TruncateRunes(in.Content, maxPromptRunes))
	return domain.ChatPrompt{System: analysisSystemPrompt, User: b.String()}
}

// sequenceCitations drops entries with no raw text and renumbers the rest so
// indexes stay dense regardless of what the provider returned.
func sequenceCitations(cites []domain.Citation) []domain.Citation {
	out := make([]domain.Citation, 0, len(cites))
	for _, c := range cites {
		c.RawText = textx.CollapseWhitespace(c.RawText)
		if c.RawText == "" {
			continue
		}
		c.Index = len(out)
		out = append(out, c)
	}
	return out
}
