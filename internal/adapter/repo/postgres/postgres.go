// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports for tasks, paper contents, summaries,
// discovered papers, tags and provider usage snapshots. All repositories run
// against a narrow pool interface so tests can substitute fakes, and every
// method opens an OpenTelemetry span on top of the driver-level tracing
// configured in NewPool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}
