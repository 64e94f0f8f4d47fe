package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

const summarizerBody = `{
	"summary": "The paper replaces recurrence with self-attention and reports state of the art translation quality at a fraction of the training cost.",
	"highlights": ["Self-attention replaces recurrence", "New state of the art on WMT 2014"]
}`

func summarizerTask(extra domain.Tree) domain.AgentTask {
	input := domain.Tree{
		"paperId":     "paper-42",
		"textContent": "We propose the Transformer, a model architecture eschewing recurrence...",
	}
	for k, v := range extra {
		input[k] = v
	}
	return newTask(domain.KindContentSummarizer, input)
}

func TestSummarizerExecute(t *testing.T) {
	client := &scriptedClient{script: []scripted{{keyword: "summarize the paper text", body: summarizerBody}}}
	repo := &memSummaries{}
	s := NewContentSummarizer(testCore(client), repo)

	data, err := s.Execute(context.Background(), summarizerTask(nil))
	require.NoError(t, err)

	assert.Contains(t, data.String("summary", ""), "self-attention")
	assert.Equal(t, "standard", data.String("summary_type", ""))
	assert.Equal(t, string(domain.ProviderAnthropic), data.String("provider", ""))

	saved, err := repo.FindByPaperID(context.Background(), "paper-42")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "standard", saved[0].Depth)
	assert.Equal(t, "general", saved[0].Audience)
	assert.Equal(t, domain.ProviderAnthropic, saved[0].Provider)
	assert.False(t, saved[0].Fallback)
	assert.Positive(t, saved[0].WordCount)
	assert.Len(t, saved[0].Highlights, 2)
}

func TestFallbackSummarizerLabelsProvider(t *testing.T) {
	client := &scriptedClient{script: []scripted{{keyword: "summarize the paper text", body: summarizerBody}}}
	repo := &memSummaries{}
	s := NewFallbackSummarizer(testCore(client), repo)

	data, err := s.Execute(context.Background(), summarizerTask(domain.Tree{"summaryType": "brief"}))
	require.NoError(t, err)

	assert.Equal(t, string(domain.ProviderOllama), data.String("provider", ""))
	assert.Equal(t, "brief", data.String("summary_type", ""))

	saved, err := repo.FindByPaperID(context.Background(), "paper-42")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].Fallback)
	assert.Equal(t, domain.ProviderOllama, saved[0].Provider)
}

func TestSummarizerInputValidation(t *testing.T) {
	s := NewContentSummarizer(testCore(nil), &memSummaries{})

	for _, input := range []domain.Tree{
		{"textContent": "body"},
		{"paperId": "paper-42"},
	} {
		task := newTask(domain.KindContentSummarizer, input)
		assert.False(t, s.CanHandle(task))
		_, err := s.Execute(context.Background(), task)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
}

func TestSummarizerRejectsEmptySummary(t *testing.T) {
	client := &scriptedClient{script: []scripted{{keyword: "summarize the paper text", body: `{"summary": "", "highlights": []}`}}}
	s := NewContentSummarizer(testCore(client), &memSummaries{})

	_, err := s.Execute(context.Background(), summarizerTask(nil))

	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestSummarizerSurvivesPersistFailure(t *testing.T) {
	client := &scriptedClient{script: []scripted{{keyword: "summarize the paper text", body: summarizerBody}}}
	repo := &memSummaries{upsertErr: assert.AnError}
	s := NewContentSummarizer(testCore(client), repo)

	data, err := s.Execute(context.Background(), summarizerTask(nil))

	require.NoError(t, err)
	assert.NotEmpty(t, data.String("summary", ""))
}
