package agents

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// ConceptExplainer identifies the key technical concepts in paper text and
// explains each at the requested level. Explanations are returned in the
// result payload only; nothing is persisted.
type ConceptExplainer struct {
	core     *Core
	provider domain.Provider
}

// NewConceptExplainer builds the primary, OpenAI-backed explainer.
func NewConceptExplainer(core *Core) *ConceptExplainer {
	return &ConceptExplainer{core: core, provider: domain.ProviderOpenAI}
}

// NewFallbackExplainer builds the Ollama-backed explainer registered as the
// local fallback.
func NewFallbackExplainer(core *Core) *ConceptExplainer {
	return &ConceptExplainer{core: core, provider: domain.ProviderOllama}
}

// Kind implements Agent.
func (e *ConceptExplainer) Kind() domain.AgentKind { return domain.KindConceptExplainer }

// Estimate implements Agent.
func (e *ConceptExplainer) Estimate(domain.AgentTask) time.Duration { return 25 * time.Second }

// CanHandle implements Agent.
func (e *ConceptExplainer) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindConceptExplainer {
		return false
	}
	_, err := explainerInput(task.Input)
	return err == nil
}

type explainerInputs struct {
	PaperID string
	Content string
	Level   string
}

func explainerInput(in domain.Tree) (explainerInputs, error) {
	paperID, err := in.RequiredString("paperId")
	if err != nil {
		return explainerInputs{}, err
	}
	content, err := in.RequiredString("content")
	if err != nil {
		return explainerInputs{}, err
	}
	return explainerInputs{
		PaperID: paperID,
		Content: content,
		Level:   in.Enum("explanationLevel", "standard", "basic", "standard", "detailed"),
	}, nil
}

// Explanation is one concept explained for the reader.
type Explanation struct {
	Concept     string `json:"concept"`
	Explanation string `json:"explanation"`
	Analogy     string `json:"analogy,omitempty"`
}

// Execute implements Agent.
func (e *ConceptExplainer) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := explainerInput(task.Input)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Explanations []Explanation `json:"explanations"`
	}
	if err := e.core.CallProviderJSON(ctx, e.provider, explainerPrompt(in), &parsed); err != nil {
		return nil, err
	}
	explanations := make([]Explanation, 0, len(parsed.Explanations))
	for _, ex := range parsed.Explanations {
		if strings.TrimSpace(ex.Concept) == "" || strings.TrimSpace(ex.Explanation) == "" {
			continue
		}
		explanations = append(explanations, ex)
	}
	if len(explanations) == 0 {
		return nil, fmt.Errorf("response carried no explanations: %w", domain.ErrParse)
	}

	return domain.Tree{
		"paper_id":          in.PaperID,
		"explanation_level": in.Level,
		"explanations":      explanations,
		"concept_count":     len(explanations),
	}, nil
}

func explainerPrompt(in explainerInputs) domain.ChatPrompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Identify the key technical concepts in the text below and explain each concept at a %s level for a non-specialist reader. Where it helps, add a short analogy.\n", in.Level)
	b.WriteString(`Respond with a JSON object: {"explanations": [{"concept": string, "explanation": string, "analogy": string}]}.`)
	b.WriteString("\n\nText:\n")
	b.WriteString(textx.TruncateRunes(in.Content, maxPromptRunes))
	return domain.ChatPrompt{System: analysisSystemPrompt, User: b.String()}
}
