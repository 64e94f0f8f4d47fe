package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// CleanupService handles data retention. It removes task envelopes, their
// results and stale discovery sets past the retention window. Paper contents,
// summaries and tags are kept: they describe the paper itself rather than one
// task run.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90 // default 90 days
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData removes data older than the retention period.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Results first so the tasks delete never strands a payload.
	results, err := tx.Exec(ctx, `DELETE FROM task_results WHERE task_id IN (SELECT id FROM tasks WHERE created_at < $1)`, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup task_results: %w", err)
	}
	tasks, err := tx.Exec(ctx, `DELETE FROM tasks WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup tasks: %w", err)
	}
	discoveries, err := tx.Exec(ctx, `DELETE FROM discovered_papers WHERE discovered_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup discovered_papers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_tasks", tasks.RowsAffected()),
		slog.Int64("deleted_results", results.RowsAffected()),
		slog.Int64("deleted_discoveries", discoveries.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour // daily by default
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial cleanup
	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
