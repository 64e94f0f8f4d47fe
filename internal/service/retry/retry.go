// Package retry executes provider calls under the gate with classified
// retries: transient and rate-limited failures are retried on separate delay
// ladders, client errors stop immediately, and repeated breaker denials are
// promoted to a provider-down error so callers can fall back.
package retry

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/gate"
)

// Policy bounds one call sequence. Zero fields fall back to the defaults.
type Policy struct {
	// MaxAttempts caps attempts for transient failures.
	MaxAttempts int
	// RateLimitedMaxAttempts caps attempts while the latest failure was a
	// rate limit; limits are expected to clear, so the budget is larger.
	RateLimitedMaxAttempts int
	// InitialDelay seeds the transient backoff ladder.
	InitialDelay time.Duration
	// RateLimitedInitialDelay seeds the rate-limited ladder.
	RateLimitedInitialDelay time.Duration
	// MaxDelay caps any single wait.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// Jitter is the randomization factor applied to every delay.
	Jitter float64
	// BreakerDenialLimit is how many consecutive breaker denials are
	// tolerated before the sequence is abandoned as provider-down.
	BreakerDenialLimit int
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RateLimitedMaxAttempts <= 0 {
		p.RateLimitedMaxAttempts = 5
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.RateLimitedInitialDelay <= 0 {
		p.RateLimitedInitialDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.BreakerDenialLimit <= 0 {
		p.BreakerDenialLimit = 2
	}
	return p
}

// merge overlays the non-zero fields of o on top of p.
func (p Policy) merge(o Policy) Policy {
	if o.MaxAttempts > 0 {
		p.MaxAttempts = o.MaxAttempts
	}
	if o.RateLimitedMaxAttempts > 0 {
		p.RateLimitedMaxAttempts = o.RateLimitedMaxAttempts
	}
	if o.InitialDelay > 0 {
		p.InitialDelay = o.InitialDelay
	}
	if o.RateLimitedInitialDelay > 0 {
		p.RateLimitedInitialDelay = o.RateLimitedInitialDelay
	}
	if o.MaxDelay > 0 {
		p.MaxDelay = o.MaxDelay
	}
	if o.Multiplier > 1 {
		p.Multiplier = o.Multiplier
	}
	if o.Jitter > 0 {
		p.Jitter = o.Jitter
	}
	if o.BreakerDenialLimit > 0 {
		p.BreakerDenialLimit = o.BreakerDenialLimit
	}
	return p
}

// Result reports how a sequence ran regardless of its outcome.
type Result struct {
	// Attempts is the number of times the operation actually ran.
	Attempts int
	// PermitWait is total time spent waiting for rate-limit tokens.
	PermitWait time.Duration
	// BreakerDenied is true when at least one acquire was denied by the
	// breaker.
	BreakerDenied bool
	// LastKind is the classification of the final error, if any.
	LastKind domain.ErrorKind
}

// Executor runs operations against a provider through the gate.
type Executor struct {
	gate      *gate.Gate
	base      Policy
	overrides map[domain.Provider]Policy
}

// New builds an Executor. overrides may be nil; per-provider entries overlay
// the base policy field by field.
func New(g *gate.Gate, base Policy, overrides map[domain.Provider]Policy) *Executor {
	return &Executor{gate: g, base: base.withDefaults(), overrides: overrides}
}

// PolicyFor resolves the effective policy for a provider.
func (e *Executor) PolicyFor(provider domain.Provider) Policy {
	if o, ok := e.overrides[provider]; ok {
		return e.base.merge(o)
	}
	return e.base
}

// Do runs op under permits for provider until it succeeds, the class budget
// is spent, or the error class rules out another try. Permit acquisition does
// not consume an attempt; only invocations of op do.
func (e *Executor) Do(ctx domain.Context, provider domain.Provider, op func(domain.Context) error) (Result, error) {
	pol := e.PolicyFor(provider)
	transientDelays := newLadder(pol.InitialDelay, pol)
	limitedDelays := newLadder(pol.RateLimitedInitialDelay, pol)

	var res Result
	var lastErr error
	denials := 0

	for {
		permit, err := e.gate.Acquire(ctx, provider)
		if err != nil {
			if errors.Is(err, domain.ErrBreakerOpen) {
				res.BreakerDenied = true
				denials++
				if denials >= pol.BreakerDenialLimit {
					res.LastKind = domain.KindProviderDown
					return res, domain.NewProviderError(provider, 0, domain.KindProviderDown, err)
				}
				slog.Warn("breaker denied permit, waiting before re-acquire",
					slog.String("provider", string(provider)),
					slog.Int("denials", denials))
				if !sleep(ctx, limitedDelays.NextBackOff()) {
					return res, fmt.Errorf("op=retry.Do provider=%s: %w", provider, ctx.Err())
				}
				continue
			}
			return res, fmt.Errorf("op=retry.Do provider=%s: %w", provider, err)
		}
		denials = 0
		res.PermitWait += permit.Wait

		res.Attempts++
		err = runOp(ctx, permit, op)
		if err == nil {
			res.LastKind = domain.KindUnknown
			return res, nil
		}
		lastErr = err

		kind := domain.Classify(err)
		res.LastKind = kind
		if !kind.Retryable() {
			return res, lastErr
		}
		budget := pol.MaxAttempts
		delays := transientDelays
		if kind == domain.KindRateLimited {
			budget = pol.RateLimitedMaxAttempts
			delays = limitedDelays
		}
		if res.Attempts >= budget {
			slog.Error("retry budget exhausted",
				slog.String("provider", string(provider)),
				slog.Int("attempts", res.Attempts),
				slog.String("class", kind.String()),
				slog.Any("error", err))
			return res, fmt.Errorf("after %d attempts: %w", res.Attempts, lastErr)
		}
		delay := delays.NextBackOff()
		slog.Warn("provider call failed, retrying",
			slog.String("provider", string(provider)),
			slog.Int("attempt", res.Attempts),
			slog.String("class", kind.String()),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if !sleep(ctx, delay) {
			return res, fmt.Errorf("op=retry.Do provider=%s: %w", provider, ctx.Err())
		}
	}
}

// runOp invokes op and settles the permit on every exit path. A panic
// unwinding through the call is recorded as a failure before it continues, so
// a half-open probe slot can never leak.
func runOp(ctx domain.Context, permit *gate.Permit, op func(domain.Context) error) (err error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start)
		if r := recover(); r != nil {
			permit.Failure(fmt.Errorf("operation panicked: %v", r), latency)
			panic(r)
		}
		if err == nil {
			permit.Success(latency)
		} else {
			permit.Failure(err, latency)
		}
	}()
	return op(ctx)
}

// newLadder builds one exponential delay sequence. MaxElapsedTime is zero so
// the ladder never declares Stop on its own; the attempt budget bounds the
// sequence instead.
func newLadder(initial time.Duration, pol Policy) *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initial
	expo.MaxInterval = pol.MaxDelay
	expo.Multiplier = pol.Multiplier
	expo.RandomizationFactor = pol.Jitter
	expo.MaxElapsedTime = 0
	expo.Reset()
	return expo
}

func sleep(ctx domain.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
