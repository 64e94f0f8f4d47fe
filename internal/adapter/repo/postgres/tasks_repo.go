package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// TaskRepo persists and loads task envelopes from PostgreSQL using a minimal
// pgx pool. Results live in a companion task_results table so the envelope row
// stays small while a task is in flight.
type TaskRepo struct{ Pool PgxPool }

// NewTaskRepo constructs a TaskRepo with the given pool.
func NewTaskRepo(p PgxPool) *TaskRepo { return &TaskRepo{Pool: p} }

// Create inserts a new task and returns its id (generates one if empty).
func (r *TaskRepo) Create(ctx domain.Context, rec domain.TaskRecord) (string, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "tasks"),
	)
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := rec.Status
	if status == "" {
		status = domain.TaskQueued
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return "", fmt.Errorf("op=task.create: %w", err)
	}
	q := `INSERT INTO tasks (id, kind, status, error, input, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	now := time.Now().UTC()
	_, err = r.Pool.Exec(ctx, q, id, rec.Kind, status, rec.Error, input, now, now)
	if err != nil {
		return "", fmt.Errorf("op=task.create: %w", err)
	}
	return id, nil
}

// UpdateStatus updates a task's status and optional error message.
func (r *TaskRepo) UpdateStatus(ctx domain.Context, id string, status domain.TaskStatus, errMsg *string) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.UpdateStatus")
	defer span.End()
	q := `UPDATE tasks SET status=$2, error=$3, updated_at=$4 WHERE id=$1`
	// Map nil errMsg to empty string to satisfy NOT NULL constraint on error column
	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	_, err := r.Pool.Exec(ctx, q, id, status, errVal, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=task.update_status: %w", err)
	}
	return nil
}

// SaveResult upserts the agent result for a task.
func (r *TaskRepo) SaveResult(ctx domain.Context, id string, res domain.AgentResult) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.SaveResult")
	defer span.End()
	if res.TaskID == "" {
		res.TaskID = id
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=task.save_result: %w", err)
	}
	q := `INSERT INTO task_results (task_id, outcome, payload, created_at)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (task_id)
	DO UPDATE SET outcome=EXCLUDED.outcome, payload=EXCLUDED.payload`
	_, err = r.Pool.Exec(ctx, q, id, res.Outcome, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=task.save_result: %w", err)
	}
	return nil
}

// Get loads a task by id, including its result when one has been saved.
func (r *TaskRepo) Get(ctx domain.Context, id string) (domain.TaskRecord, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "tasks"),
	)
	q := `SELECT t.id, t.kind, t.status, COALESCE(t.error,''), t.input, t.created_at, t.updated_at, r.payload
	FROM tasks t
	LEFT JOIN task_results r ON r.task_id = t.id
	WHERE t.id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var rec domain.TaskRecord
	var input, payload []byte
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Status, &rec.Error, &input, &rec.CreatedAt, &rec.UpdatedAt, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TaskRecord{}, fmt.Errorf("op=task.get: %w", domain.ErrNotFound)
		}
		return domain.TaskRecord{}, fmt.Errorf("op=task.get: %w", err)
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &rec.Input); err != nil {
			return domain.TaskRecord{}, fmt.Errorf("op=task.get: %w", err)
		}
	}
	if len(payload) > 0 {
		var res domain.AgentResult
		if err := json.Unmarshal(payload, &res); err != nil {
			return domain.TaskRecord{}, fmt.Errorf("op=task.get: %w", err)
		}
		rec.Result = &res
	}
	return rec, nil
}
