package postgres

import (
	"fmt"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// schemaStatements creates every table the repositories touch. Statements are
// idempotent so both processes can run them at startup in any order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL,
		error      TEXT,
		input      JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON tasks (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS task_results (
		task_id    TEXT PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
		outcome    TEXT NOT NULL,
		payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS paper_contents (
		paper_id     TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		abstract     TEXT,
		sections     JSONB,
		citations    JSONB,
		key_findings JSONB,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS summaries (
		paper_id   TEXT NOT NULL,
		depth      TEXT NOT NULL,
		audience   TEXT NOT NULL,
		body       TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		provider   TEXT NOT NULL DEFAULT '',
		fallback   BOOLEAN NOT NULL DEFAULT false,
		highlights JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (paper_id, depth, audience)
	)`,
	`CREATE TABLE IF NOT EXISTS paper_tags (
		paper_id   TEXT NOT NULL,
		tag        TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		source     TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (paper_id, tag)
	)`,
	`CREATE TABLE IF NOT EXISTS discovered_papers (
		id               TEXT PRIMARY KEY,
		seed_paper_id    TEXT NOT NULL,
		seed_paper_title TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL,
		authors          JSONB,
		year             INTEGER NOT NULL DEFAULT 0,
		venue            TEXT NOT NULL DEFAULT '',
		doi              TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		abstract_snippet TEXT NOT NULL DEFAULT '',
		citation_count   INTEGER NOT NULL DEFAULT 0,
		relevance        DOUBLE PRECISION NOT NULL DEFAULT 0,
		sources          JSONB,
		relationship     TEXT NOT NULL DEFAULT '',
		discovered_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_discovered_papers_seed ON discovered_papers (seed_paper_id, relevance DESC)`,
	`CREATE TABLE IF NOT EXISTS provider_usage (
		provider            TEXT NOT NULL,
		total_requests      BIGINT NOT NULL DEFAULT 0,
		successful_requests BIGINT NOT NULL DEFAULT 0,
		failed_requests     BIGINT NOT NULL DEFAULT 0,
		avg_latency_ms      DOUBLE PRECISION NOT NULL DEFAULT 0,
		breaker_state       TEXT NOT NULL DEFAULT '',
		last_request_at     TIMESTAMPTZ,
		recorded_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_usage_latest ON provider_usage (provider, recorded_at DESC)`,
}

// EnsureSchema creates all tables and indexes if they do not exist yet.
func EnsureSchema(ctx domain.Context, pool PgxPool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.ensure: %w", err)
		}
	}
	return nil
}
