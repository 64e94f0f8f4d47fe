package discovery

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// promptClient answers with a fixed body and keeps every prompt it saw.
type promptClient struct {
	mu      sync.Mutex
	prompts []domain.ChatPrompt
	body    string
}

func (p *promptClient) Call(_ context.Context, prompt domain.ChatPrompt) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return p.body, nil
}

func (p *promptClient) last() domain.ChatPrompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[len(p.prompts)-1]
}

func discoveredFixture() []domain.DiscoveredPaper {
	return []domain.DiscoveredPaper{
		{Title: "Efficient Transformers: A Survey", Year: 2022, Relationship: "cites"},
		{Title: "Longformer"},
	}
}

func TestSynthesizerPromptAndAnswer(t *testing.T) {
	client := &promptClient{body: `{"synthesis": "Both papers build on the seed's attention mechanism."}`}
	s := NewAISynthesizer(client, testExec(), domain.ProviderOpenAI)

	seed := testSeed
	seed.Abstract = "We propose a model relying entirely on attention mechanisms."

	text, err := s.Synthesize(context.Background(), seed, discoveredFixture())
	require.NoError(t, err)
	assert.Equal(t, "Both papers build on the seed's attention mechanism.", text)

	prompt := client.last()
	assert.Equal(t, "You are an academic paper analysis assistant. Respond with JSON only, no prose.", prompt.System)
	assert.Equal(t, 1000, prompt.MaxTokens)
	assert.Contains(t, prompt.User, `seed paper "Attention Is All You Need"`)
	assert.Contains(t, prompt.User, "Seed abstract: We propose a model")
	assert.Contains(t, prompt.User, "1. Efficient Transformers: A Survey (2022) [cites]")
	assert.Contains(t, prompt.User, "2. Longformer\n")
	assert.Contains(t, prompt.User, `Respond with JSON: {"synthesis": string}`)
}

func TestSynthesizerNothingToSummarize(t *testing.T) {
	client := &promptClient{body: `{"synthesis": "should not be called"}`}
	s := NewAISynthesizer(client, testExec(), domain.ProviderOpenAI)

	text, err := s.Synthesize(context.Background(), testSeed, nil)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, client.prompts)
}

func TestSynthesizerCapsPaperList(t *testing.T) {
	papers := make([]domain.DiscoveredPaper, 0, 12)
	for i := 0; i < 12; i++ {
		papers = append(papers, domain.DiscoveredPaper{Title: "Paper " + string(rune('A'+i))})
	}

	client := &promptClient{body: `{"synthesis": "A crowded field."}`}
	s := NewAISynthesizer(client, testExec(), domain.ProviderOpenAI)

	_, err := s.Synthesize(context.Background(), testSeed, papers)
	require.NoError(t, err)

	user := client.last().User
	assert.Contains(t, user, "10. Paper J")
	assert.NotContains(t, user, "11. Paper K")
}

func TestSynthesizerRetriesTransient(t *testing.T) {
	client := &flakyClient{failures: 1, response: `{"synthesis": "Recovered after a blip."}`}
	s := NewAISynthesizer(client, testExec(), domain.ProviderPerplexity)

	text, err := s.Synthesize(context.Background(), testSeed, discoveredFixture())
	require.NoError(t, err)
	assert.Equal(t, "Recovered after a blip.", text)
	assert.Equal(t, 2, client.calls)
}

func TestSynthesizerRejectsProse(t *testing.T) {
	client := &promptClient{body: "These papers all describe attention variants."}
	s := NewAISynthesizer(client, testExec(), domain.ProviderOpenAI)

	_, err := s.Synthesize(context.Background(), testSeed, discoveredFixture())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.Contains(t, err.Error(), "op=discovery.synthesis")
}

func TestSynthesizerRejectsEmptySynthesis(t *testing.T) {
	client := &promptClient{body: `{"synthesis": "   "}`}
	s := NewAISynthesizer(client, testExec(), domain.ProviderOpenAI)

	_, err := s.Synthesize(context.Background(), testSeed, discoveredFixture())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
	assert.Contains(t, err.Error(), "empty synthesis")
}
