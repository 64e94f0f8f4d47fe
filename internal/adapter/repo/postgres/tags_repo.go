package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// TagRepo persists subject tags for papers.
type TagRepo struct{ Pool PgxPool }

// NewTagRepo constructs a TagRepo with the given pool.
func NewTagRepo(p PgxPool) *TagRepo { return &TagRepo{Pool: p} }

// ReplaceByPaperID swaps the tag set for a paper in one transaction.
func (r *TagRepo) ReplaceByPaperID(ctx domain.Context, paperID string, tags []domain.PaperTag) error {
	tracer := otel.Tracer("repo.tags")
	ctx, span := tracer.Start(ctx, "tags.ReplaceByPaperID")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=tag.replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM paper_tags WHERE paper_id=$1`, paperID); err != nil {
		return fmt.Errorf("op=tag.replace: %w", err)
	}
	q := `INSERT INTO paper_tags (paper_id, tag, confidence, source) VALUES ($1,$2,$3,$4)`
	for _, t := range tags {
		if _, err := tx.Exec(ctx, q, paperID, t.Tag, t.Confidence, t.Source); err != nil {
			return fmt.Errorf("op=tag.replace: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=tag.replace: %w", err)
	}
	return nil
}

// FindByPaperID loads the tags for a paper, most confident first.
func (r *TagRepo) FindByPaperID(ctx domain.Context, paperID string) ([]domain.PaperTag, error) {
	tracer := otel.Tracer("repo.tags")
	ctx, span := tracer.Start(ctx, "tags.FindByPaperID")
	defer span.End()
	q := `SELECT paper_id, tag, confidence, source FROM paper_tags WHERE paper_id=$1 ORDER BY confidence DESC, tag ASC`
	rows, err := r.Pool.Query(ctx, q, paperID)
	if err != nil {
		return nil, fmt.Errorf("op=tag.find: %w", err)
	}
	defer rows.Close()
	var out []domain.PaperTag
	for rows.Next() {
		var t domain.PaperTag
		if err := rows.Scan(&t.PaperID, &t.Tag, &t.Confidence, &t.Source); err != nil {
			return nil, fmt.Errorf("op=tag.find: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=tag.find: %w", err)
	}
	return out, nil
}
