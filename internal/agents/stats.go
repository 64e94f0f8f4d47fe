package agents

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/retry"
)

// callStats accumulates provider-call accounting across one agent
// invocation. Agents that fan out internally update it from several
// goroutines, hence the mutex.
type callStats struct {
	mu         sync.Mutex
	attempts   int
	permitWait time.Duration
	provider   domain.Provider
}

func (s *callStats) add(provider domain.Provider, res retry.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts += res.Attempts
	s.permitWait += res.PermitWait
	s.provider = provider
}

func (s *callStats) snapshot() (domain.Provider, int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider, s.attempts, s.permitWait
}

type statsCtxKey struct{}

func withCallStats(ctx domain.Context, s *callStats) domain.Context {
	return context.WithValue(ctx, statsCtxKey{}, s)
}

// callStatsFrom returns the invocation's accumulator, or nil outside a
// Runner-managed invocation.
func callStatsFrom(ctx domain.Context) *callStats {
	s, _ := ctx.Value(statsCtxKey{}).(*callStats)
	return s
}
