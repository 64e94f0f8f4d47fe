package redpanda

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/agents"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// TaskHandler bridges dequeued payloads to the agent runner and records the
// outcome on the task row. Errors it returns report infrastructure trouble
// (status or result writes failing); agent failures are not errors at this
// level, they become a failed task with an error message.
type TaskHandler struct {
	tasks    domain.TaskRepository
	runner   *agents.Runner
	deadline time.Duration
}

// NewTaskHandler wires the handler. deadline bounds one agent run end to
// end; zero or negative selects five minutes.
func NewTaskHandler(tasks domain.TaskRepository, runner *agents.Runner, deadline time.Duration) *TaskHandler {
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	return &TaskHandler{tasks: tasks, runner: runner, deadline: deadline}
}

// Handle runs one task through its agent and persists status and result.
func (h *TaskHandler) Handle(ctx context.Context, payload domain.AgentTaskPayload) error {
	lg := observability.LoggerFromContext(ctx)

	if err := h.tasks.UpdateStatus(ctx, payload.TaskID, domain.TaskProcessing, nil); err != nil {
		return fmt.Errorf("mark task processing: %w", err)
	}
	observability.StartProcessingTask(string(payload.Kind))

	runCtx, cancel := context.WithTimeout(ctx, h.deadline)
	defer cancel()

	res := h.runner.Run(runCtx, domain.AgentTask{
		ID:        payload.TaskID,
		Kind:      payload.Kind,
		Input:     payload.Input,
		CreatedAt: payload.SubmittedAt,
	})

	// Persist the result before the status flips so a reader never sees a
	// completed task without its payload.
	if err := h.tasks.SaveResult(ctx, payload.TaskID, res); err != nil {
		return fmt.Errorf("save task result: %w", err)
	}

	if res.Succeeded() {
		if err := h.tasks.UpdateStatus(ctx, payload.TaskID, domain.TaskCompleted, nil); err != nil {
			return fmt.Errorf("mark task completed: %w", err)
		}
		observability.CompleteTask(string(payload.Kind))
		lg.Info("task completed", slog.String("outcome", string(res.Outcome)))
		return nil
	}

	errMsg := res.ErrorMessage
	if err := h.tasks.UpdateStatus(ctx, payload.TaskID, domain.TaskFailed, &errMsg); err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	observability.FailTask(string(payload.Kind))
	lg.Warn("task failed", slog.String("error", errMsg))
	return nil
}
