package gate

import (
	"sync"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// UsageSnapshot is a point-in-time view of one provider's counters.
type UsageSnapshot struct {
	Provider           domain.Provider `json:"provider"`
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	FailedRequests     int64           `json:"failed_requests"`
	RateLimitedHits    int64           `json:"rate_limited_hits"`
	BreakerDenials     int64           `json:"breaker_denials"`
	AvgLatencyMillis   float64         `json:"avg_latency_ms"`
	BreakerState       string          `json:"breaker_state"`
	LastRequestAt      time.Time       `json:"last_request_at"`
}

// usageStats accumulates request counters for one provider.
type usageStats struct {
	mu             sync.Mutex
	total          int64
	success        int64
	failed         int64
	rateLimited    int64
	breakerDenials int64
	latencySum     time.Duration
	latencyCount   int64
	lastRequestAt  time.Time
}

func (u *usageStats) recordSuccess(latency time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.total++
	u.success++
	u.latencySum += latency
	u.latencyCount++
	u.lastRequestAt = time.Now()
}

func (u *usageStats) recordFailure(latency time.Duration, rateLimited bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.total++
	u.failed++
	if rateLimited {
		u.rateLimited++
	}
	u.latencySum += latency
	u.latencyCount++
	u.lastRequestAt = time.Now()
}

func (u *usageStats) recordBreakerDenial() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.breakerDenials++
}

func (u *usageStats) snapshot(provider domain.Provider, breakerState string) UsageSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	snap := UsageSnapshot{
		Provider:           provider,
		TotalRequests:      u.total,
		SuccessfulRequests: u.success,
		FailedRequests:     u.failed,
		RateLimitedHits:    u.rateLimited,
		BreakerDenials:     u.breakerDenials,
		BreakerState:       breakerState,
		LastRequestAt:      u.lastRequestAt,
	}
	if u.latencyCount > 0 {
		snap.AvgLatencyMillis = float64(u.latencySum.Milliseconds()) / float64(u.latencyCount)
	}
	return snap
}
