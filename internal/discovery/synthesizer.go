package discovery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/retry"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

const synthesisMaxPapers = 10

// AISynthesizer narrates a discovery result: a short prose account of how the
// found papers relate to the seed. Plugged into the coordinator when the run
// config enables synthesis.
type AISynthesizer struct {
	client   domain.ProviderClient
	exec     *retry.Executor
	provider domain.Provider
}

// NewAISynthesizer builds a synthesizer on the given provider client.
func NewAISynthesizer(client domain.ProviderClient, exec *retry.Executor, provider domain.Provider) *AISynthesizer {
	return &AISynthesizer{client: client, exec: exec, provider: provider}
}

// Synthesize implements Synthesizer.
func (s *AISynthesizer) Synthesize(ctx domain.Context, seed domain.SeedPaper, papers []domain.DiscoveredPaper) (string, error) {
	if len(papers) == 0 {
		return "", nil
	}
	if len(papers) > synthesisMaxPapers {
		papers = papers[:synthesisMaxPapers]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a short synthesis of how the discovered papers below relate to the seed paper %q, noting each paper's relevance to the seed paper.\n", seed.Title)
	if seed.Abstract != "" {
		fmt.Fprintf(&b, "Seed abstract: %s\n", textx.TruncateRunes(seed.Abstract, 400))
	}
	b.WriteString("\nDiscovered papers:\n")
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Title)
		if p.Year > 0 {
			fmt.Fprintf(&b, " (%d)", p.Year)
		}
		if p.Relationship != "" {
			fmt.Fprintf(&b, " [%s]", p.Relationship)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with JSON: {"synthesis": string}`)

	var raw string
	_, err := s.exec.Do(ctx, s.provider, func(ctx domain.Context) error {
		var err error
		raw, err = s.client.Call(ctx, domain.ChatPrompt{
			System:    "You are an academic paper analysis assistant. Respond with JSON only, no prose.",
			User:      b.String(),
			MaxTokens: 1000,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	cleaned, err := ai.CleanJSON(raw)
	if err != nil {
		return "", fmt.Errorf("op=discovery.synthesis: %w", err)
	}
	var parsed struct {
		Synthesis string `json:"synthesis"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return "", fmt.Errorf("op=discovery.synthesis: decode answer: %w", domain.ErrParse)
	}
	if strings.TrimSpace(parsed.Synthesis) == "" {
		return "", fmt.Errorf("op=discovery.synthesis: empty synthesis: %w", domain.ErrParse)
	}
	return parsed.Synthesis, nil
}
