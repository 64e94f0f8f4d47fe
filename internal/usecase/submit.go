// Package usecase contains application services: thin orchestration between
// the HTTP surface and the domain ports.
package usecase

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// SubmitService creates agent tasks and hands them to the queue.
type SubmitService struct {
	Tasks domain.TaskRepository
	Queue domain.Queue
}

// NewSubmitService constructs a SubmitService with its dependencies.
func NewSubmitService(t domain.TaskRepository, q domain.Queue) SubmitService {
	return SubmitService{Tasks: t, Queue: q}
}

// Submit validates the request, persists a queued task and enqueues it for
// the worker. The returned id is the handle for polling.
func (s SubmitService) Submit(ctx domain.Context, kind domain.AgentKind, input domain.Tree) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown task kind %q", domain.ErrInvalidInput, kind)
	}
	if len(input) == 0 {
		return "", fmt.Errorf("%w: empty task input", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	id, err := s.Tasks.Create(ctx, domain.TaskRecord{
		Kind:      kind,
		Status:    domain.TaskQueued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", err
	}

	payload := domain.AgentTaskPayload{
		TaskID:      id,
		Kind:        kind,
		Input:       input,
		SubmittedAt: now,
	}
	if _, err := s.Queue.EnqueueTask(ctx, payload); err != nil {
		// The row stays so the client gets a terminal status instead of a
		// task id that never resolves.
		msg := "enqueue failed"
		_ = s.Tasks.UpdateStatus(ctx, id, domain.TaskFailed, &msg)
		return "", err
	}
	return id, nil
}
