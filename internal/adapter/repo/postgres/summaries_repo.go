package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// SummaryRepo persists generated summaries keyed by paper, depth and audience.
type SummaryRepo struct{ Pool PgxPool }

// NewSummaryRepo constructs a SummaryRepo with the given pool.
func NewSummaryRepo(p PgxPool) *SummaryRepo { return &SummaryRepo{Pool: p} }

// Upsert inserts or updates a summary for its (paper, depth, audience) key.
func (r *SummaryRepo) Upsert(ctx domain.Context, s domain.Summary) error {
	tracer := otel.Tracer("repo.summaries")
	ctx, span := tracer.Start(ctx, "summaries.Upsert")
	defer span.End()
	highlights, err := json.Marshal(s.Highlights)
	if err != nil {
		return fmt.Errorf("op=summary.upsert: %w", err)
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	q := `INSERT INTO summaries (paper_id, depth, audience, body, word_count, provider, fallback, highlights, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (paper_id, depth, audience)
	DO UPDATE SET body=EXCLUDED.body, word_count=EXCLUDED.word_count, provider=EXCLUDED.provider, fallback=EXCLUDED.fallback, highlights=EXCLUDED.highlights, created_at=EXCLUDED.created_at`
	_, err = r.Pool.Exec(ctx, q, s.PaperID, s.Depth, s.Audience, s.Text, s.WordCount, s.Provider, s.Fallback, highlights, createdAt)
	if err != nil {
		return fmt.Errorf("op=summary.upsert: %w", err)
	}
	return nil
}

// FindByPaperID loads all stored summaries for a paper, newest first.
func (r *SummaryRepo) FindByPaperID(ctx domain.Context, paperID string) ([]domain.Summary, error) {
	tracer := otel.Tracer("repo.summaries")
	ctx, span := tracer.Start(ctx, "summaries.FindByPaperID")
	defer span.End()
	q := `SELECT paper_id, depth, audience, body, word_count, provider, fallback, highlights, created_at FROM summaries WHERE paper_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, paperID)
	if err != nil {
		return nil, fmt.Errorf("op=summary.find: %w", err)
	}
	defer rows.Close()
	var out []domain.Summary
	for rows.Next() {
		var s domain.Summary
		var highlights []byte
		if err := rows.Scan(&s.PaperID, &s.Depth, &s.Audience, &s.Text, &s.WordCount, &s.Provider, &s.Fallback, &highlights, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=summary.find: %w", err)
		}
		if len(highlights) > 0 {
			if err := json.Unmarshal(highlights, &s.Highlights); err != nil {
				return nil, fmt.Errorf("op=summary.find: %w", err)
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=summary.find: %w", err)
	}
	return out, nil
}
