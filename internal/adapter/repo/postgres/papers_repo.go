package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// PaperContentRepo persists structured paper content. One row per paper; a
// re-run of the processor overwrites the previous extraction.
type PaperContentRepo struct{ Pool PgxPool }

// NewPaperContentRepo constructs a PaperContentRepo with the given pool.
func NewPaperContentRepo(p PgxPool) *PaperContentRepo { return &PaperContentRepo{Pool: p} }

// ReplaceByPaperID stores the content for a paper, replacing any previous row.
func (r *PaperContentRepo) ReplaceByPaperID(ctx domain.Context, content domain.PaperContent) error {
	tracer := otel.Tracer("repo.papers")
	ctx, span := tracer.Start(ctx, "papers.ReplaceByPaperID")
	defer span.End()
	sections, err := json.Marshal(content.Sections)
	if err != nil {
		return fmt.Errorf("op=paper.replace: %w", err)
	}
	citations, err := json.Marshal(content.Citations)
	if err != nil {
		return fmt.Errorf("op=paper.replace: %w", err)
	}
	findings, err := json.Marshal(content.KeyFindings)
	if err != nil {
		return fmt.Errorf("op=paper.replace: %w", err)
	}
	q := `INSERT INTO paper_contents (paper_id, title, abstract, sections, citations, key_findings, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (paper_id)
	DO UPDATE SET title=EXCLUDED.title, abstract=EXCLUDED.abstract, sections=EXCLUDED.sections, citations=EXCLUDED.citations, key_findings=EXCLUDED.key_findings, updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q, content.PaperID, content.Title, content.Abstract, sections, citations, findings, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=paper.replace: %w", err)
	}
	return nil
}

// FindByPaperID loads the stored content for a paper.
func (r *PaperContentRepo) FindByPaperID(ctx domain.Context, paperID string) (domain.PaperContent, error) {
	tracer := otel.Tracer("repo.papers")
	ctx, span := tracer.Start(ctx, "papers.FindByPaperID")
	defer span.End()
	q := `SELECT paper_id, title, COALESCE(abstract,''), sections, citations, key_findings FROM paper_contents WHERE paper_id=$1`
	row := r.Pool.QueryRow(ctx, q, paperID)
	var content domain.PaperContent
	var sections, citations, findings []byte
	if err := row.Scan(&content.PaperID, &content.Title, &content.Abstract, &sections, &citations, &findings); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaperContent{}, fmt.Errorf("op=paper.find: %w", domain.ErrNotFound)
		}
		return domain.PaperContent{}, fmt.Errorf("op=paper.find: %w", err)
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &content.Sections); err != nil {
			return domain.PaperContent{}, fmt.Errorf("op=paper.find: %w", err)
		}
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &content.Citations); err != nil {
			return domain.PaperContent{}, fmt.Errorf("op=paper.find: %w", err)
		}
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &content.KeyFindings); err != nil {
			return domain.PaperContent{}, fmt.Errorf("op=paper.find: %w", err)
		}
	}
	return content, nil
}
