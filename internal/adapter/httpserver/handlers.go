package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/usecase"
)

// Server aggregates the API handlers' dependencies.
type Server struct {
	Cfg        config.Config
	Submit     usecase.SubmitService
	Results    usecase.ResultService
	Papers     usecase.PaperService
	Providers  usecase.ProviderService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	KafkaCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, submit usecase.SubmitService, results usecase.ResultService, papers usecase.PaperService, providers usecase.ProviderService, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{
		Cfg: cfg, Submit: submit, Results: results, Papers: papers, Providers: providers,
		DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// acceptsJSON rejects requests whose Accept header excludes JSON; the API
// speaks nothing else.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
		writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
			Code: "INVALID_INPUT", Message: "not acceptable", Details: map[string]any{"accept": a},
		}})
		return false
	}
	return true
}

// SubmitTaskHandler accepts an agent task and enqueues it for the worker.
func (s *Server) SubmitTaskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		// Documents travel inline in the input tree, so the cap tracks the
		// configured document size rather than a fixed small body limit.
		maxBody := s.Cfg.MaxDocumentKB*1024*2 + 64*1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)

		var req struct {
			Kind  string         `json:"kind" validate:"required"`
			Input map[string]any `json:"input" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code: "INVALID_INPUT", Message: "payload too large",
					Details: map[string]any{"max_document_kb": s.Cfg.MaxDocumentKB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidInput), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidInput), verrs)
			return
		}

		kind := domain.AgentKind(SanitizeString(req.Kind))
		if !kind.Valid() {
			writeError(w, r, fmt.Errorf("%w: unknown task kind %q", domain.ErrInvalidInput, req.Kind), nil)
			return
		}
		if vr := ValidateDocumentFields(req.Input, s.Cfg.MaxDocumentKB); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: document validation failed", domain.ErrInvalidInput), vr.Errors)
			return
		}

		id, err := s.Submit.Submit(r.Context(), kind, domain.Tree(req.Input))
		if err != nil {
			writeError(w, r, fmt.Errorf("submit task: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(domain.TaskQueued)})
	}
}

// ResultHandler returns task status and, once completed, the agent result.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if vr := ValidateTaskID(id); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: bad task id", domain.ErrInvalidInput), vr.Errors)
			return
		}
		status, res, etag, err := s.Results.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, res)
	}
}

// PaperHandler returns the stored artifacts for one paper: structured
// content, summaries and tags.
func (s *Server) PaperHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		arts, err := s.Papers.Artifacts(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := map[string]any{"paper_id": id}
		if arts.Content != nil {
			out["content"] = arts.Content
		}
		if len(arts.Summaries) > 0 {
			out["summaries"] = arts.Summaries
		}
		if len(arts.Tags) > 0 {
			out["tags"] = arts.Tags
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DiscoveriesHandler returns the stored related-paper set for a seed paper.
func (s *Server) DiscoveriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		papers, err := s.Papers.RelatedPapers(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"paper_id": id, "related_papers": papers, "count": len(papers)})
	}
}

// ProvidersHandler returns the latest flushed usage snapshot per provider.
func (s *Server) ProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		snaps, err := s.Providers.Stats(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]map[string]any, 0, len(snaps))
		for _, sn := range snaps {
			out = append(out, map[string]any{
				"provider":            string(sn.Provider),
				"total_requests":      sn.TotalRequests,
				"successful_requests": sn.SuccessfulRequests,
				"failed_requests":     sn.FailedRequests,
				"avg_latency_ms":      sn.AvgLatencyMillis,
				"breaker_state":       sn.BreakerState,
				"last_request_at":     sn.LastRequestAt,
				"recorded_at":         sn.RecordedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"providers": out})
	}
}

// ReadyzHandler probes the API server's hard dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	run := func(ctx context.Context, name string, fn func(context.Context) error, checks []check) []check {
		if fn == nil {
			return checks
		}
		if err := fn(ctx); err != nil {
			return append(checks, check{Name: name, OK: false, Details: err.Error()})
		}
		return append(checks, check{Name: name, OK: true})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		checks = run(ctx, "db", s.DBCheck, checks)
		checks = run(ctx, "redis", s.RedisCheck, checks)
		checks = run(ctx, "kafka", s.KafkaCheck, checks)
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
