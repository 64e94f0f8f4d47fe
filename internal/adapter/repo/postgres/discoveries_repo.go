package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// DiscoveryRepo persists discovered related papers keyed by the seed paper.
type DiscoveryRepo struct{ Pool PgxPool }

// NewDiscoveryRepo constructs a DiscoveryRepo with the given pool.
func NewDiscoveryRepo(p PgxPool) *DiscoveryRepo { return &DiscoveryRepo{Pool: p} }

// ReplaceByPaperID swaps the full discovery set for a seed paper in one
// transaction. The delete and inserts share the seedPaperID argument so a
// payload carrying a stale seed id cannot leave rows behind.
func (r *DiscoveryRepo) ReplaceByPaperID(ctx domain.Context, seedPaperID string, papers []domain.DiscoveredPaper) error {
	tracer := otel.Tracer("repo.discoveries")
	ctx, span := tracer.Start(ctx, "discoveries.ReplaceByPaperID")
	defer span.End()
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=discovery.replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM discovered_papers WHERE seed_paper_id=$1`, seedPaperID); err != nil {
		return fmt.Errorf("op=discovery.replace: %w", err)
	}
	q := `INSERT INTO discovered_papers (id, seed_paper_id, seed_paper_title, title, authors, year, venue, doi, url, abstract_snippet, citation_count, relevance, sources, relationship, discovered_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	for _, p := range papers {
		id := p.PaperID
		if id == "" {
			id = ulid.Make().String()
		}
		authors, err := json.Marshal(p.Authors)
		if err != nil {
			return fmt.Errorf("op=discovery.replace: %w", err)
		}
		sources, err := json.Marshal(p.Sources)
		if err != nil {
			return fmt.Errorf("op=discovery.replace: %w", err)
		}
		discoveredAt := p.DiscoveredAt
		if discoveredAt.IsZero() {
			discoveredAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, q, id, seedPaperID, p.SeedPaperTitle, p.Title, authors, p.Year, p.Venue, p.DOI, p.URL, p.AbstractSnip, p.CitationCount, p.Relevance, sources, p.Relationship, discoveredAt); err != nil {
			return fmt.Errorf("op=discovery.replace: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=discovery.replace: %w", err)
	}
	return nil
}

// FindByPaperID loads the discovery set for a seed paper, most relevant first.
func (r *DiscoveryRepo) FindByPaperID(ctx domain.Context, seedPaperID string) ([]domain.DiscoveredPaper, error) {
	tracer := otel.Tracer("repo.discoveries")
	ctx, span := tracer.Start(ctx, "discoveries.FindByPaperID")
	defer span.End()
	q := `SELECT id, seed_paper_id, seed_paper_title, title, authors, year, venue, doi, url, abstract_snippet, citation_count, relevance, sources, relationship, discovered_at
	FROM discovered_papers WHERE seed_paper_id=$1 ORDER BY relevance DESC, title ASC`
	rows, err := r.Pool.Query(ctx, q, seedPaperID)
	if err != nil {
		return nil, fmt.Errorf("op=discovery.find: %w", err)
	}
	defer rows.Close()
	var out []domain.DiscoveredPaper
	for rows.Next() {
		var p domain.DiscoveredPaper
		var authors, sources []byte
		if err := rows.Scan(&p.PaperID, &p.SeedPaperID, &p.SeedPaperTitle, &p.Title, &authors, &p.Year, &p.Venue, &p.DOI, &p.URL, &p.AbstractSnip, &p.CitationCount, &p.Relevance, &sources, &p.Relationship, &p.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("op=discovery.find: %w", err)
		}
		if len(authors) > 0 {
			if err := json.Unmarshal(authors, &p.Authors); err != nil {
				return nil, fmt.Errorf("op=discovery.find: %w", err)
			}
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &p.Sources); err != nil {
				return nil, fmt.Errorf("op=discovery.find: %w", err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=discovery.find: %w", err)
	}
	return out, nil
}
