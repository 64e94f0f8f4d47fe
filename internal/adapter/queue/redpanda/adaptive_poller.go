package redpanda

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// AdaptivePoller adjusts the idle-poll interval from recent outcomes: quiet
// or failing brokers slow the loop down, steady successes speed it up.
type AdaptivePoller struct {
	mu                 sync.RWMutex
	baseInterval       time.Duration
	maxInterval        time.Duration
	minInterval        time.Duration
	backoffFactor      float64
	successCount       int
	failureCount       int
	consecutiveSuccess int
	consecutiveFailure int
	lastPollTime       time.Time
	lastSuccessTime    time.Time
	lastFailureTime    time.Time
	isHealthy          bool
}

// NewAdaptivePoller creates a poller around baseInterval, bounded to
// [500ms, 10s] with a 20% backoff step per consecutive failure.
func NewAdaptivePoller(baseInterval time.Duration) *AdaptivePoller {
	return &AdaptivePoller{
		baseInterval:  baseInterval,
		maxInterval:   10 * time.Second,
		minInterval:   500 * time.Millisecond,
		backoffFactor: 1.2,
	}
}

// GetNextInterval computes the next wait from the success/failure history.
func (ap *AdaptivePoller) GetNextInterval() time.Duration {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	// Circuit breaker: after too many consecutive failures stop ramping and
	// probe at a fixed slow cadence.
	if ap.consecutiveFailure >= 10 {
		ap.isHealthy = false
		slog.Warn("poll circuit breaker active",
			slog.Int("consecutive_failures", ap.consecutiveFailure),
			slog.Duration("fixed_interval", ap.maxInterval))
		return ap.maxInterval
	}

	if ap.failureCount > ap.successCount {
		backoffMultiplier := math.Pow(ap.backoffFactor, float64(ap.consecutiveFailure))
		interval := float64(ap.baseInterval) * backoffMultiplier

		// Jitter of up to ±5% so a fleet of consumers does not retry in step.
		frac := float64(time.Now().UnixNano()%1000) / 1000.0
		interval += interval * 0.1 * (frac - 0.5)

		if interval > float64(ap.maxInterval) {
			interval = float64(ap.maxInterval)
		}
		slog.Debug("poll backoff",
			slog.Duration("interval", time.Duration(interval)),
			slog.Int("consecutive_failures", ap.consecutiveFailure))
		return time.Duration(interval)
	}

	// Succeeding: tighten toward the floor.
	successMultiplier := math.Max(0.5, 1.0/float64(ap.consecutiveSuccess+1))
	interval := float64(ap.baseInterval) * successMultiplier
	if interval < float64(ap.minInterval) {
		interval = float64(ap.minInterval)
	}
	ap.isHealthy = true
	return time.Duration(interval)
}

// RecordSuccess notes a poll that reached the brokers.
func (ap *AdaptivePoller) RecordSuccess() {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	ap.successCount++
	ap.consecutiveSuccess++
	ap.consecutiveFailure = 0
	ap.lastSuccessTime = time.Now()
	ap.lastPollTime = time.Now()
	ap.isHealthy = true
}

// RecordFailure notes a poll that errored.
func (ap *AdaptivePoller) RecordFailure() {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	ap.failureCount++
	ap.consecutiveFailure++
	ap.consecutiveSuccess = 0
	ap.lastFailureTime = time.Now()
	ap.lastPollTime = time.Now()
	ap.isHealthy = false
}

// IsHealthy reports whether the last polls succeeded.
func (ap *AdaptivePoller) IsHealthy() bool {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.isHealthy
}

// GetStats snapshots the counters for operator surfaces.
func (ap *AdaptivePoller) GetStats() map[string]any {
	ap.mu.RLock()
	defer ap.mu.RUnlock()

	totalPolls := ap.successCount + ap.failureCount
	successRate := 0.0
	if totalPolls > 0 {
		successRate = float64(ap.successCount) / float64(totalPolls)
	}

	return map[string]any{
		"base_interval":       ap.baseInterval,
		"max_interval":        ap.maxInterval,
		"min_interval":        ap.minInterval,
		"success_count":       ap.successCount,
		"failure_count":       ap.failureCount,
		"consecutive_success": ap.consecutiveSuccess,
		"consecutive_failure": ap.consecutiveFailure,
		"total_polls":         totalPolls,
		"success_rate":        successRate,
		"is_healthy":          ap.isHealthy,
		"last_poll_time":      ap.lastPollTime,
		"last_success_time":   ap.lastSuccessTime,
		"last_failure_time":   ap.lastFailureTime,
	}
}

// Reset clears the history, e.g. after a broker topology change.
func (ap *AdaptivePoller) Reset() {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	ap.successCount = 0
	ap.failureCount = 0
	ap.consecutiveSuccess = 0
	ap.consecutiveFailure = 0
	ap.isHealthy = true
}
