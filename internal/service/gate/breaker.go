package gate

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed indicates the breaker is allowing requests to pass through.
	BreakerClosed BreakerState = iota
	// BreakerOpen indicates the breaker is blocking requests due to failures.
	BreakerOpen
	// BreakerHalfOpen indicates the breaker is probing recovery with limited requests.
	BreakerHalfOpen
)

// String returns a string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes one provider's breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// MaxProbes caps concurrent trial requests in the half-open state.
	MaxProbes int
}

// Breaker tracks consecutive availability failures for one provider. While
// open it denies all attempts; after the cooldown it admits up to MaxProbes
// concurrent trials, closing on the first success and reopening on any
// failure.
type Breaker struct {
	mu        sync.Mutex
	provider  string
	cfg       BreakerConfig
	state     BreakerState
	failures  int
	probes    int
	openedAt  time.Time
	openCount int
}

// NewBreaker creates a closed breaker for a provider.
func NewBreaker(provider string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 3
	}
	return &Breaker{provider: provider, cfg: cfg, state: BreakerClosed}
}

// Allow reports whether a request may proceed. The second return value is
// true when the grant is a half-open probe; callers must settle every granted
// probe with RecordSuccess, RecordFailure or ReleaseProbe.
func (b *Breaker) Allow() (granted, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true, false
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return false, false
		}
		b.state = BreakerHalfOpen
		b.probes = 1
		slog.Info("circuit breaker half-open, probing recovery",
			slog.String("provider", b.provider))
		return true, true
	case BreakerHalfOpen:
		if b.probes >= b.cfg.MaxProbes {
			return false, false
		}
		b.probes++
		return true, true
	default:
		return false, false
	}
}

// RecordSuccess records a successful request. A success while half-open
// closes the breaker immediately.
func (b *Breaker) RecordSuccess(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if probe && b.state == BreakerHalfOpen {
		b.probes--
	}
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.probes = 0
		slog.Info("circuit breaker closed after successful recovery",
			slog.String("provider", b.provider))
	}
}

// RecordFailure records a failed request. While half-open any failure reopens
// the breaker and restarts the cooldown; while closed the breaker opens once
// the consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.state == BreakerHalfOpen {
		b.probes--
	}
	switch b.state {
	case BreakerHalfOpen:
		b.open("probe failed during recovery")
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open("consecutive failure threshold reached")
		}
	case BreakerOpen:
		// Straggler from before the transition; cooldown is not extended.
	}
}

// ReleaseProbe returns a probe slot that was granted but never produced an
// outcome, e.g. when permit acquisition was cancelled afterwards.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	slog.Info("circuit breaker reset", slog.String("provider", b.provider))
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) open(reason string) {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.probes = 0
	b.failures = b.cfg.FailureThreshold
	b.openCount++
	slog.Warn("circuit breaker opened",
		slog.String("provider", b.provider),
		slog.String("reason", reason),
		slog.Duration("cooldown", b.cfg.Cooldown))
}
