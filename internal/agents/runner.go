package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Runner drives one agent invocation through the shared lifecycle: resolve
// the agent, validate input, execute, and on permanent failure hand the task
// to the registered fallback exactly once. Every path yields an AgentResult
// with full metrics; Run itself never returns an error.
type Runner struct {
	agents    *Registry
	fallbacks *FallbackRegistry
}

// NewRunner builds a Runner over the primary and fallback registries.
func NewRunner(agents *Registry, fallbacks *FallbackRegistry) *Runner {
	if fallbacks == nil {
		fallbacks = NewFallbackRegistry()
	}
	return &Runner{agents: agents, fallbacks: fallbacks}
}

// Estimate returns the registered agent's duration estimate for the task, or
// false when no agent handles its kind.
func (r *Runner) Estimate(task domain.AgentTask) (time.Duration, bool) {
	agent, ok := r.agents.Get(task.Kind)
	if !ok {
		return 0, false
	}
	return agent.Estimate(task), true
}

// Run executes the task and reports the outcome.
func (r *Runner) Run(ctx domain.Context, task domain.AgentTask) domain.AgentResult {
	started := time.Now().UTC()
	log := observability.LoggerFromContext(ctx).With(
		slog.String("task_id", task.ID),
		slog.String("kind", string(task.Kind)))
	stats := &callStats{}
	ctx = withCallStats(ctx, stats)

	finish := func(res domain.AgentResult) domain.AgentResult {
		res.TaskID = task.ID
		res.Metrics.StartedAt = started
		res.Metrics.Duration = time.Since(started)
		res.Metrics.Provider, res.Metrics.Attempts, res.Metrics.PermitWait = stats.snapshot()
		observability.ObserveAgentDuration(string(task.Kind), res.Metrics.Duration)
		return res
	}

	agent, ok := r.agents.Get(task.Kind)
	if !ok {
		return finish(failure(fmt.Sprintf("no agent registered for kind %q", task.Kind)))
	}
	if !agent.CanHandle(task) {
		return finish(failure(fmt.Sprintf("task input rejected by %s: %v", task.Kind, domain.ErrInvalidInput)))
	}

	data, err := agent.Execute(ctx, task)
	if err == nil {
		_, attempts, _ := stats.snapshot()
		log.Info("agent completed",
			slog.Int("attempts", attempts),
			slog.Duration("took", time.Since(started)))
		return finish(domain.AgentResult{Outcome: domain.OutcomeSuccess, Data: data})
	}

	kind := domain.Classify(err)
	log.Warn("primary agent failed",
		slog.String("class", kind.String()),
		slog.Any("error", err))

	// A dead caller context means the task ran out of time, not the provider;
	// a fallback result could not be delivered anyway.
	if ctx.Err() != nil {
		return finish(failure(fmt.Sprintf("task aborted: %v", err)))
	}
	// Malformed input fails the same way everywhere; surface it instead of
	// masking it behind a degraded answer.
	if errors.Is(err, domain.ErrInvalidInput) {
		return finish(failure(err.Error()))
	}

	fb, ok := r.fallbacks.Get(task.Kind)
	if !ok || !fb.CanHandle(task) {
		return finish(failure(err.Error()))
	}

	reason := fmt.Sprintf("%s: %v", kind, err)
	log.Info("invoking fallback agent", slog.String("reason", reason))
	fbData, fbErr := fb.Execute(ctx, task)
	if fbErr != nil {
		log.Error("fallback agent failed", slog.Any("error", fbErr))
		return finish(failure(fmt.Sprintf("primary: %v; fallback: %v", err, fbErr)))
	}
	observability.RecordFallback(string(task.Kind))
	res := domain.AgentResult{Outcome: domain.OutcomeFallback, Data: fbData}
	res.Metrics.FallbackUsed = true
	res.Metrics.PrimaryFailureReason = reason
	return finish(res)
}

func failure(msg string) domain.AgentResult {
	return domain.AgentResult{Outcome: domain.OutcomeFailure, ErrorMessage: msg}
}
