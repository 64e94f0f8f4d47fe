package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// UsageRepo stores provider usage snapshots. Rows are append-only; Latest
// picks the newest snapshot per provider so dashboards survive restarts of
// the in-process counters.
type UsageRepo struct{ Pool PgxPool }

// NewUsageRepo constructs a UsageRepo with the given pool.
func NewUsageRepo(p PgxPool) *UsageRepo { return &UsageRepo{Pool: p} }

// Save appends a usage snapshot.
func (r *UsageRepo) Save(ctx domain.Context, snap domain.ProviderUsageSnapshot) error {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.Save")
	defer span.End()
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	var lastRequestAt *time.Time
	if !snap.LastRequestAt.IsZero() {
		t := snap.LastRequestAt.UTC()
		lastRequestAt = &t
	}
	q := `INSERT INTO provider_usage (provider, total_requests, successful_requests, failed_requests, avg_latency_ms, breaker_state, last_request_at, recorded_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, snap.Provider, snap.TotalRequests, snap.SuccessfulRequests, snap.FailedRequests, snap.AvgLatencyMillis, snap.BreakerState, lastRequestAt, recordedAt)
	if err != nil {
		return fmt.Errorf("op=usage.save: %w", err)
	}
	return nil
}

// Latest loads the most recent snapshot for a provider.
func (r *UsageRepo) Latest(ctx domain.Context, provider domain.Provider) (domain.ProviderUsageSnapshot, error) {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.Latest")
	defer span.End()
	q := `SELECT provider, total_requests, successful_requests, failed_requests, avg_latency_ms, breaker_state, last_request_at, recorded_at
	FROM provider_usage WHERE provider=$1 ORDER BY recorded_at DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, provider)
	var snap domain.ProviderUsageSnapshot
	var lastRequestAt *time.Time
	if err := row.Scan(&snap.Provider, &snap.TotalRequests, &snap.SuccessfulRequests, &snap.FailedRequests, &snap.AvgLatencyMillis, &snap.BreakerState, &lastRequestAt, &snap.RecordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProviderUsageSnapshot{}, fmt.Errorf("op=usage.latest: %w", domain.ErrNotFound)
		}
		return domain.ProviderUsageSnapshot{}, fmt.Errorf("op=usage.latest: %w", err)
	}
	if lastRequestAt != nil {
		snap.LastRequestAt = *lastRequestAt
	}
	return snap, nil
}
