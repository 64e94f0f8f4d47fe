package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

const qualityBody = `{"score": 0.88, "issues": [], "summary": "No significant problems found."}`

func qualityTaskInput() domain.Tree {
	return domain.Tree{
		"itemId":  "summary-7",
		"content": "The paper shows that attention models outperform recurrent baselines.",
	}
}

func TestQualityCheckerExecute(t *testing.T) {
	client := &scriptedClient{script: []scripted{{keyword: "assess the quality", body: qualityBody}}}
	q := NewQualityChecker(testCore(client))

	task := newTask(domain.KindQualityChecker, qualityTaskInput())
	require.True(t, q.CanHandle(task))

	data, err := q.Execute(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, 5, client.callCount(), "one provider call per dimension")
	assert.Equal(t, "summary-7", data.String("item_id", ""))
	assert.Equal(t, "standard", data.String("check_type", ""))
	assert.InDelta(t, 0.88, data.Float("overall_score", 0), 1e-9)
	assert.Equal(t, "B", data.String("grade", ""))

	checks, ok := data["checks"].([]CheckResult)
	require.True(t, ok)
	require.Len(t, checks, 5)
	names := make([]string, 0, 5)
	for _, c := range checks {
		names = append(names, c.Name)
		assert.False(t, c.Degraded)
	}
	assert.Equal(t, []string{"accuracy", "consistency", "bias", "hallucination", "coherence"}, names)
}

func TestQualityCheckerDegradesPermanentFailure(t *testing.T) {
	provErr := domain.NewProviderError(domain.ProviderAnthropic, 400, domain.KindNonRetryable, errors.New("bad request"))
	client := &scriptedClient{script: []scripted{
		{keyword: "factual accuracy", err: provErr},
		{keyword: "assess the quality", body: qualityBody},
	}}
	q := NewQualityChecker(testCore(client))

	data, err := q.Execute(context.Background(), newTask(domain.KindQualityChecker, qualityTaskInput()))
	require.NoError(t, err, "one broken dimension must not sink the assessment")

	checks := data["checks"].([]CheckResult)
	require.Len(t, checks, 5)
	var accuracy CheckResult
	for _, c := range checks {
		if c.Name == "accuracy" {
			accuracy = c
		}
	}
	assert.True(t, accuracy.Degraded)
	assert.Equal(t, 0.5, accuracy.Score)
	assert.Equal(t, "check did not complete", accuracy.Summary)

	// 0.3*0.5 neutral + 0.7*0.88 from the intact dimensions.
	assert.InDelta(t, 0.766, data.Float("overall_score", 0), 1e-9)
	assert.Equal(t, "C", data.String("grade", ""))

	issues, ok := data["issues"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0], "accuracy: ")
}

func TestQualityCheckerAbortsOnRetryableFailure(t *testing.T) {
	provErr := domain.NewProviderError(domain.ProviderAnthropic, 503, domain.KindTransient, errors.New("overloaded"))
	client := &scriptedClient{script: []scripted{
		{keyword: "factual accuracy", err: provErr},
		{keyword: "assess the quality", body: qualityBody},
	}}
	q := NewQualityChecker(testCore(client))

	_, err := q.Execute(context.Background(), newTask(domain.KindQualityChecker, qualityTaskInput()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accuracy check")
}

func TestQualityInputValidation(t *testing.T) {
	tests := []struct {
		name  string
		input domain.Tree
	}{
		{name: "missing item id", input: domain.Tree{"content": "text"}},
		{name: "missing content", input: domain.Tree{"itemId": "x"}},
		{name: "unknown check type", input: domain.Tree{"itemId": "x", "content": "text", "checkType": "extreme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := qualityInput(tt.input)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	in, err := qualityInput(domain.Tree{"paperId": "paper-42", "textContent": "text"})
	require.NoError(t, err, "paperId and textContent are accepted aliases")
	assert.Equal(t, "paper-42", in.ItemID)
}

func TestQualityGrade(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.95, "A"}, {0.9, "A"}, {0.89, "B"}, {0.8, "B"},
		{0.75, "C"}, {0.65, "D"}, {0.59, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, qualityGrade(tt.score), "score %v", tt.score)
	}
}

func TestHeuristicQualityChecker(t *testing.T) {
	content := "Abstract. This paper has an introduction, a method section, results and a discussion with a conclusion. " +
		"Findings are supported by prior measurements [1] and replications reported earlier (Smith, 2020). " +
		"The models generalize reliably across the tasks we evaluated."
	h := NewHeuristicQualityChecker()

	data, err := h.Execute(context.Background(), newTask(domain.KindQualityChecker, domain.Tree{
		"itemId":  "summary-7",
		"content": content,
	}))
	require.NoError(t, err)

	assert.Equal(t, "heuristic", data.String("method", ""))
	assert.InDelta(t, 0.89, data.Float("overall_score", 0), 1e-9)
	assert.Equal(t, "B", data.String("grade", ""))

	checks := data["checks"].([]CheckResult)
	require.Len(t, checks, 5)
	assert.Equal(t, 1.0, checks[0].Score, "all six section markers present")
	assert.InDelta(t, 0.7, checks[3].Score, 1e-9, "two citation markers found")
	issues, _ := data["issues"].([]string)
	assert.Empty(t, issues)
}

func TestHeuristicQualityCheckerPoorContent(t *testing.T) {
	content := "it is always obviously true that never failing proves that this certainly works in every case we tested"
	h := NewHeuristicQualityChecker()

	data, err := h.Execute(context.Background(), newTask(domain.KindQualityChecker, domain.Tree{
		"itemId":  "summary-8",
		"content": content,
	}))
	require.NoError(t, err)

	assert.InDelta(t, 0.58, data.Float("overall_score", 0), 1e-9)
	assert.Equal(t, "F", data.String("grade", ""))

	issues, ok := data["issues"].([]string)
	require.True(t, ok)
	joined := ""
	for _, iss := range issues {
		joined += iss + "\n"
	}
	assert.Contains(t, joined, "accuracy: ")
	assert.Contains(t, joined, "bias: ")
	assert.Contains(t, joined, "hallucination: ")
}

func TestHeuristicReadabilityWithoutSentences(t *testing.T) {
	h := NewHeuristicQualityChecker()

	data, err := h.Execute(context.Background(), newTask(domain.KindQualityChecker, domain.Tree{
		"itemId":  "summary-9",
		"content": "tiny note.",
	}))
	require.NoError(t, err)

	checks := data["checks"].([]CheckResult)
	require.Len(t, checks, 5)
	coherence := checks[4]
	assert.Equal(t, "coherence", coherence.Name)
	assert.Equal(t, 0.4, coherence.Score)
	assert.Contains(t, coherence.Issues, "no complete sentences found")
}
