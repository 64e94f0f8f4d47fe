package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/usecase"
)

func TestProviderStats_ReturnsFlushedProvidersInOrder(t *testing.T) {
	now := time.Now().UTC()
	usage := &fakeUsage{latest: map[domain.Provider]domain.ProviderUsageSnapshot{
		domain.ProviderCrossref: {Provider: domain.ProviderCrossref, TotalRequests: 40, SuccessfulRequests: 40, BreakerState: "closed", RecordedAt: now},
		domain.ProviderOpenAI:   {Provider: domain.ProviderOpenAI, TotalRequests: 12, SuccessfulRequests: 10, FailedRequests: 2, AvgLatencyMillis: 812.5, BreakerState: "closed", RecordedAt: now},
	}}
	svc := usecase.NewProviderService(usage)

	out, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2, "providers that never flushed are omitted")
	// Stable order follows the provider enumeration, not map iteration.
	assert.Equal(t, domain.ProviderOpenAI, out[0].Provider)
	assert.Equal(t, domain.ProviderCrossref, out[1].Provider)
	assert.Equal(t, int64(12), out[0].TotalRequests)
}

func TestProviderStats_EmptyWhenNothingFlushed(t *testing.T) {
	svc := usecase.NewProviderService(&fakeUsage{})
	out, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestProviderStats_ErrorPropagates(t *testing.T) {
	svc := usecase.NewProviderService(&fakeUsage{err: errors.New("db down")})
	_, err := svc.Stats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
