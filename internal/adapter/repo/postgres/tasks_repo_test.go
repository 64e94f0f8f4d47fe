package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

func TestTaskRepoCreateGeneratesID(t *testing.T) {
	pool := &fakePool{}
	repo := NewTaskRepo(pool)

	id, err := repo.Create(context.Background(), domain.TaskRecord{
		Kind:  domain.KindContentSummarizer,
		Input: domain.Tree{"paperId": "paper-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, pool.execCalls, 1)
	call := pool.execCalls[0]
	assert.Contains(t, call.sql, "INSERT INTO tasks")
	assert.Equal(t, id, call.args[0])
	assert.Equal(t, domain.KindContentSummarizer, call.args[1])
	// Status defaults to queued when the caller leaves it empty.
	assert.Equal(t, domain.TaskQueued, call.args[2])

	var input map[string]any
	require.NoError(t, json.Unmarshal(call.args[4].([]byte), &input))
	assert.Equal(t, "paper-1", input["paperId"])
}

func TestTaskRepoCreateKeepsExplicitID(t *testing.T) {
	pool := &fakePool{}
	repo := NewTaskRepo(pool)

	id, err := repo.Create(context.Background(), domain.TaskRecord{
		ID:     "task-42",
		Kind:   domain.KindPaperProcessor,
		Status: domain.TaskProcessing,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-42", id)

	call := pool.execCalls[0]
	assert.Equal(t, "task-42", call.args[0])
	assert.Equal(t, domain.TaskProcessing, call.args[2])
}

func TestTaskRepoCreateExecError(t *testing.T) {
	pool := &fakePool{execErr: errors.New("boom")}
	repo := NewTaskRepo(pool)

	_, err := repo.Create(context.Background(), domain.TaskRecord{Kind: domain.KindPaperProcessor})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=task.create")
}

func TestTaskRepoUpdateStatus(t *testing.T) {
	pool := &fakePool{}
	repo := NewTaskRepo(pool)

	require.NoError(t, repo.UpdateStatus(context.Background(), "task-1", domain.TaskProcessing, nil))
	call := pool.execCalls[0]
	assert.Contains(t, call.sql, "UPDATE tasks")
	assert.Equal(t, "task-1", call.args[0])
	assert.Equal(t, domain.TaskProcessing, call.args[1])
	// nil errMsg lands as empty string, not NULL.
	assert.Equal(t, "", call.args[2])

	msg := "provider unavailable"
	require.NoError(t, repo.UpdateStatus(context.Background(), "task-1", domain.TaskFailed, &msg))
	call = pool.execCalls[1]
	assert.Equal(t, domain.TaskFailed, call.args[1])
	assert.Equal(t, msg, call.args[2])
}

func TestTaskRepoSaveResult(t *testing.T) {
	pool := &fakePool{}
	repo := NewTaskRepo(pool)

	res := domain.AgentResult{
		Outcome: domain.OutcomeSuccess,
		Data:    domain.Tree{"summary": "short"},
	}
	require.NoError(t, repo.SaveResult(context.Background(), "task-1", res))

	call := pool.execCalls[0]
	assert.Contains(t, call.sql, "INSERT INTO task_results")
	assert.Contains(t, call.sql, "ON CONFLICT (task_id)")
	assert.Equal(t, "task-1", call.args[0])
	assert.Equal(t, domain.OutcomeSuccess, call.args[1])

	var saved domain.AgentResult
	require.NoError(t, json.Unmarshal(call.args[2].([]byte), &saved))
	// The repo stamps the task id into the payload when the caller forgot it.
	assert.Equal(t, "task-1", saved.TaskID)
	assert.Equal(t, "short", saved.Data["summary"])
}

func TestTaskRepoSaveResultExecError(t *testing.T) {
	pool := &fakePool{execErr: errors.New("boom")}
	repo := NewTaskRepo(pool)

	err := repo.SaveResult(context.Background(), "task-1", domain.AgentResult{Outcome: domain.OutcomeFailure})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=task.save_result")
}

func TestTaskRepoGetWithResult(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(30 * time.Second)
	payload, err := json.Marshal(domain.AgentResult{
		TaskID:  "task-1",
		Outcome: domain.OutcomeFallback,
		Data:    domain.Tree{"summary": "done"},
	})
	require.NoError(t, err)

	pool := &fakePool{rowScan: scanInto(
		"task-1", domain.KindContentSummarizer, domain.TaskCompleted, "",
		[]byte(`{"paperId":"paper-1"}`), created, updated, payload,
	)}
	repo := NewTaskRepo(pool)

	rec, err := repo.Get(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", rec.ID)
	assert.Equal(t, domain.KindContentSummarizer, rec.Kind)
	assert.Equal(t, domain.TaskCompleted, rec.Status)
	assert.Equal(t, "paper-1", rec.Input["paperId"])
	assert.True(t, rec.CreatedAt.Equal(created))
	assert.True(t, rec.UpdatedAt.Equal(updated))
	require.NotNil(t, rec.Result)
	assert.Equal(t, domain.OutcomeFallback, rec.Result.Outcome)
	assert.Equal(t, "done", rec.Result.Data["summary"])

	require.Len(t, pool.rowCalls, 1)
	assert.Contains(t, pool.rowCalls[0].sql, "LEFT JOIN task_results")
}

func TestTaskRepoGetWithoutResult(t *testing.T) {
	pool := &fakePool{rowScan: scanInto(
		"task-2", domain.KindQualityChecker, domain.TaskQueued, "",
		nil, time.Now().UTC(), time.Now().UTC(), nil,
	)}
	repo := NewTaskRepo(pool)

	rec, err := repo.Get(context.Background(), "task-2")
	require.NoError(t, err)
	assert.Nil(t, rec.Result)
	assert.Nil(t, rec.Input)
}

func TestTaskRepoGetNotFound(t *testing.T) {
	pool := &fakePool{rowScan: func(...any) error { return pgx.ErrNoRows }}
	repo := NewTaskRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=task.get")
}

func TestTaskRepoGetCorruptPayload(t *testing.T) {
	pool := &fakePool{rowScan: scanInto(
		"task-3", domain.KindPaperProcessor, domain.TaskCompleted, "",
		nil, time.Now().UTC(), time.Now().UTC(), []byte("{not json"),
	)}
	repo := NewTaskRepo(pool)

	_, err := repo.Get(context.Background(), "task-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=task.get")
}
