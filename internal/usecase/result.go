package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// ResultService reads task status and assembles the API response envelope,
// including conditional responses (304 via ETag) and the read-time stale
// sweep for tasks the worker lost.
type ResultService struct {
	Tasks domain.TaskRepository
	// StaleAfter is how long a queued or processing task may sit unchanged
	// before a read reports it failed. Set well above the worker's per-task
	// deadline; the background sweeper uses the same threshold.
	StaleAfter time.Duration
}

// NewResultService constructs a ResultService with the default staleness
// threshold.
func NewResultService(t domain.TaskRepository) ResultService {
	return ResultService{Tasks: t, StaleAfter: 15 * time.Minute}
}

// Fetch returns the HTTP status code, response body and ETag for a task id.
func (s ResultService) Fetch(ctx domain.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	rec, err := s.Tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("%w: task not found", domain.ErrNotFound)
		}
		return http.StatusInternalServerError, nil, "", err
	}

	if rec.Status != domain.TaskCompleted {
		now := time.Now().UTC()
		stale := (rec.Status == domain.TaskQueued && now.Sub(rec.CreatedAt) > s.StaleAfter) ||
			(rec.Status == domain.TaskProcessing && now.Sub(rec.UpdatedAt) > s.StaleAfter)
		if stale {
			msg := fmt.Sprintf("timeout: task unchanged for over %s", s.StaleAfter)
			_ = s.Tasks.UpdateStatus(ctx, id, domain.TaskFailed, &msg)
			rec.Status = domain.TaskFailed
			rec.Error = msg
		}

		m := map[string]any{"id": id, "status": string(rec.Status)}
		if rec.Status == domain.TaskFailed {
			m["error"] = map[string]any{
				"code":    errorCodeFromTaskError(rec.Error),
				"message": rec.Error,
			}
		}
		return conditional(m, ifNoneMatch)
	}

	m := map[string]any{"id": id, "status": string(domain.TaskCompleted)}
	if rec.Result != nil {
		m["outcome"] = string(rec.Result.Outcome)
		m["result"] = rec.Result.Data
		if rec.Result.Metrics.FallbackUsed {
			m["degraded_reason"] = rec.Result.Metrics.PrimaryFailureReason
		}
	}
	return conditional(m, ifNoneMatch)
}

func conditional(m map[string]any, ifNoneMatch string) (int, map[string]any, string, error) {
	etag := makeETag(m)
	if etag == ifNoneMatch {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// errorCodeFromTaskError maps a stored task error message to a stable code
// clients can branch on.
func errorCodeFromTaskError(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(s, "rate limit"):
		return "UPSTREAM_RATE_LIMIT"
	case strings.Contains(s, "breaker"), strings.Contains(s, "provider unavailable"), strings.Contains(s, "provider down"):
		return "PROVIDER_DOWN"
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"), strings.Contains(s, "aborted"):
		return "UPSTREAM_TIMEOUT"
	case strings.Contains(s, "parse"), strings.Contains(s, "invalid json"), strings.Contains(s, "schema"):
		return "SCHEMA_INVALID"
	case strings.Contains(s, "invalid input"), strings.Contains(s, "rejected"):
		return "INVALID_INPUT"
	case strings.Contains(s, "not found"):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}
