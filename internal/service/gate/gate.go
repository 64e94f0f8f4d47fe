// Package gate enforces per-provider quotas. Every external call must acquire
// a permit first: a token from the provider's rate limiter plus a pass from
// its circuit breaker. Settling the permit feeds the breaker and the usage
// counters.
package gate

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Quota is one provider's rate allowance. RatePerSec zero or below means
// unlimited.
type Quota struct {
	RatePerSec float64
	Burst      int
}

// Gate owns one limiter, breaker and counter set per provider. The provider
// set is fixed at construction; rates are adjustable at runtime.
type Gate struct {
	providers map[domain.Provider]*providerGate
}

type providerGate struct {
	name    domain.Provider
	limiter *rate.Limiter
	breaker *Breaker
	usage   *usageStats
}

// New builds a Gate for the given quotas. Providers missing from quotas get
// an unlimited limiter and a default breaker.
func New(quotas map[domain.Provider]Quota, breakerCfg BreakerConfig) *Gate {
	g := &Gate{providers: make(map[domain.Provider]*providerGate, len(domain.Providers()))}
	for _, p := range domain.Providers() {
		q := quotas[p]
		g.providers[p] = &providerGate{
			name:    p,
			limiter: newLimiter(q),
			breaker: NewBreaker(string(p), breakerCfg),
			usage:   &usageStats{},
		}
	}
	return g
}

func newLimiter(q Quota) *rate.Limiter {
	if q.RatePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := q.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(q.RatePerSec), burst)
}

// Permit is one granted call slot. Exactly one of Success, Failure or Release
// must be called when the caller is done with it.
type Permit struct {
	pg      *providerGate
	probe   bool
	Wait    time.Duration
	settled bool
}

// TryAcquire attempts non-blocking admission for provider. It reports false
// when the breaker blocks or no token is instantly available; the permit is
// non-nil only on a grant.
func (g *Gate) TryAcquire(provider domain.Provider) (*Permit, bool) {
	pg, ok := g.providers[provider]
	if !ok {
		return nil, false
	}
	granted, probe := pg.breaker.Allow()
	if !granted {
		pg.usage.recordBreakerDenial()
		return nil, false
	}
	if !pg.limiter.Allow() {
		if probe {
			pg.breaker.ReleaseProbe()
		}
		return nil, false
	}
	return &Permit{pg: pg, probe: probe}, true
}

// Acquire obtains a permit for provider, blocking on the rate limiter up to
// the context deadline. A denial from the breaker fails fast with
// domain.ErrBreakerOpen before any token is consumed.
func (g *Gate) Acquire(ctx domain.Context, provider domain.Provider) (*Permit, error) {
	pg, ok := g.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", provider, domain.ErrInvalidInput)
	}

	granted, probe := pg.breaker.Allow()
	if !granted {
		pg.usage.recordBreakerDenial()
		return nil, fmt.Errorf("provider %s: %w", provider, domain.ErrBreakerOpen)
	}

	start := time.Now()
	if err := pg.limiter.Wait(ctx); err != nil {
		if probe {
			pg.breaker.ReleaseProbe()
		}
		return nil, fmt.Errorf("rate limit wait for %s: %w", provider, err)
	}
	return &Permit{pg: pg, probe: probe, Wait: time.Since(start)}, nil
}

// Success settles the permit as a successful call.
func (p *Permit) Success(latency time.Duration) {
	if p.settled {
		return
	}
	p.settled = true
	p.pg.usage.recordSuccess(latency)
	p.pg.breaker.RecordSuccess(p.probe)
}

// Failure settles the permit as a failed call. Availability faults and quota
// rejections count against the breaker; an input or parse error proves the
// provider handled the request, so it neither counts toward nor resets the
// consecutive-failure streak.
func (p *Permit) Failure(err error, latency time.Duration) {
	if p.settled {
		return
	}
	p.settled = true
	kind := domain.Classify(err)
	p.pg.usage.recordFailure(latency, kind == domain.KindRateLimited)
	switch kind {
	case domain.KindTransient, domain.KindRateLimited, domain.KindProviderDown, domain.KindUnknown:
		p.pg.breaker.RecordFailure(p.probe)
	default:
		if p.probe {
			p.pg.breaker.ReleaseProbe()
		}
	}
}

// Release abandons the permit without recording an outcome.
func (p *Permit) Release() {
	if p.settled {
		return
	}
	p.settled = true
	if p.probe {
		p.pg.breaker.ReleaseProbe()
	}
}

// SetRate replaces a provider's quota at runtime. Zero or negative rate makes
// the provider unlimited.
func (g *Gate) SetRate(provider domain.Provider, q Quota) error {
	pg, ok := g.providers[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q: %w", provider, domain.ErrInvalidInput)
	}
	if q.RatePerSec <= 0 {
		pg.limiter.SetLimit(rate.Inf)
		pg.limiter.SetBurst(0)
	} else {
		burst := q.Burst
		if burst < 1 {
			burst = 1
		}
		pg.limiter.SetLimit(rate.Limit(q.RatePerSec))
		pg.limiter.SetBurst(burst)
	}
	slog.Info("provider rate updated",
		slog.String("provider", string(provider)),
		slog.Float64("rate_per_sec", q.RatePerSec),
		slog.Int("burst", q.Burst))
	return nil
}

// ResetBreaker forces a provider's breaker closed.
func (g *Gate) ResetBreaker(provider domain.Provider) error {
	pg, ok := g.providers[provider]
	if !ok {
		return fmt.Errorf("unknown provider %q: %w", provider, domain.ErrInvalidInput)
	}
	pg.breaker.Reset()
	return nil
}

// BreakerState returns the current breaker state for provider.
func (g *Gate) BreakerState(provider domain.Provider) BreakerState {
	pg, ok := g.providers[provider]
	if !ok {
		return BreakerClosed
	}
	return pg.breaker.State()
}

// Usage returns the counters for one provider.
func (g *Gate) Usage(provider domain.Provider) (UsageSnapshot, error) {
	pg, ok := g.providers[provider]
	if !ok {
		return UsageSnapshot{}, fmt.Errorf("unknown provider %q: %w", provider, domain.ErrInvalidInput)
	}
	return pg.usage.snapshot(provider, pg.breaker.State().String()), nil
}

// UsageAll returns counters for every provider, ordered by provider name.
func (g *Gate) UsageAll() []UsageSnapshot {
	out := make([]UsageSnapshot, 0, len(g.providers))
	for p, pg := range g.providers {
		out = append(out, pg.usage.snapshot(p, pg.breaker.State().String()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
