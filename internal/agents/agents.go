// Package agents implements the orchestrator's agent layer: the eight task
// kinds, the shared execution lifecycle that drives provider calls through
// rate-limit permits and classified retries, and the fallback registry
// consulted when a primary agent fails permanently.
package agents

import (
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Agent is the contract every task handler satisfies, primary and fallback
// alike. Execute returns the result payload; the Runner wraps it into an
// AgentResult with outcome and metrics.
type Agent interface {
	// Kind names the task kind this agent handles.
	Kind() domain.AgentKind
	// Estimate predicts how long the task will take, for upstream scheduling.
	Estimate(task domain.AgentTask) time.Duration
	// CanHandle reports whether the task input has the shape this agent needs.
	CanHandle(task domain.AgentTask) bool
	// Execute performs the task. Returned errors should classify under
	// domain.Classify so the caller can decide between retry, fallback and
	// fail.
	Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error)
}

// analysisSystemPrompt fronts every structured-extraction call; providers
// drift into prose without it.
const analysisSystemPrompt = "You are an academic paper analysis assistant. Respond with JSON only, no prose."

// maxPromptRunes caps document text embedded in prompts so oversized uploads
// cannot blow the provider context window.
const maxPromptRunes = 24000

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
