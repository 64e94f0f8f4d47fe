package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/service/gate"
)

// GateAdmin exposes the live provider gate on the worker's operational
// listener. The gate is in-process worker state, so its controls mount next
// to the worker, not on the API server.
type GateAdmin struct {
	Gate      *gate.Gate
	TokenHash string
}

// NewGateAdmin wires the admin surface over a gate. tokenHash is the
// argon2id-encoded operator token; empty disables all admin writes.
func NewGateAdmin(g *gate.Gate, tokenHash string) *GateAdmin {
	return &GateAdmin{Gate: g, TokenHash: tokenHash}
}

// MountRoutes mounts the admin endpoints on r. Reads are open (they feed
// dashboards); writes require the operator token.
func (a *GateAdmin) MountRoutes(r chi.Router) {
	r.Get("/v1/admin/providers", a.ProvidersHandler())
	r.Group(func(pr chi.Router) {
		pr.Use(AdminTokenGuard(a.TokenHash))
		pr.Post("/v1/admin/providers/{provider}/rate", a.UpdateRateHandler())
		pr.Post("/v1/admin/providers/{provider}/reset", a.ResetBreakerHandler())
	})
}

// ProvidersHandler reports live usage counters and breaker states.
func (a *GateAdmin) ProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": a.Gate.UsageAll()})
	}
}

func providerParam(r *http.Request) (domain.Provider, error) {
	p := domain.Provider(SanitizeString(chi.URLParam(r, "provider")))
	for _, known := range domain.Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, p)
}

// UpdateRateHandler hot-swaps one provider's rate limit.
func (a *GateAdmin) UpdateRateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := providerParam(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		var req struct {
			RatePerSec float64 `json:"rate_per_sec"`
			Burst      int     `json:"burst"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidInput), nil)
			return
		}
		if err := a.Gate.SetRate(p, gate.Quota{RatePerSec: req.RatePerSec, Burst: req.Burst}); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":     string(p),
			"rate_per_sec": req.RatePerSec,
			"burst":        req.Burst,
		})
	}
}

// ResetBreakerHandler forces one provider's breaker closed.
func (a *GateAdmin) ResetBreakerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := providerParam(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := a.Gate.ResetBreaker(p); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":      string(p),
			"breaker_state": a.Gate.BreakerState(p).String(),
		})
	}
}
