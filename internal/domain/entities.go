// Package domain defines the core entities and ports of the paper-analysis
// orchestrator: agent tasks and results, provider identities, error taxonomy,
// and the narrow repository/queue/client interfaces adapters implement.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrBreakerOpen         = errors.New("circuit breaker open")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrParse               = errors.New("response parse failed")
	ErrInternal            = errors.New("internal error")
)

// AgentKind enumerates the closed set of agent task kinds.
type AgentKind string

const (
	KindPaperProcessor        AgentKind = "paper_processor"
	KindMetadataEnhancer      AgentKind = "metadata_enhancer"
	KindContentSummarizer     AgentKind = "content_summarizer"
	KindConceptExplainer      AgentKind = "concept_explainer"
	KindCitationFormatter     AgentKind = "citation_formatter"
	KindQualityChecker        AgentKind = "quality_checker"
	KindPerplexityResearcher  AgentKind = "perplexity_researcher"
	KindRelatedPaperDiscovery AgentKind = "related_paper_discovery"
)

// AgentKinds returns every known kind in a stable order.
func AgentKinds() []AgentKind {
	return []AgentKind{
		KindPaperProcessor, KindMetadataEnhancer, KindContentSummarizer,
		KindConceptExplainer, KindCitationFormatter, KindQualityChecker,
		KindPerplexityResearcher, KindRelatedPaperDiscovery,
	}
}

// Valid reports whether k names a known agent kind.
func (k AgentKind) Valid() bool {
	for _, known := range AgentKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Provider enumerates external dependencies with their own quota and failure
// profile.
type Provider string

const (
	ProviderOpenAI          Provider = "openai"
	ProviderAnthropic       Provider = "anthropic"
	ProviderPerplexity      Provider = "perplexity"
	ProviderOllama          Provider = "ollama"
	ProviderCrossref        Provider = "crossref"
	ProviderSemanticScholar Provider = "semantic_scholar"
)

// Providers returns every known provider in a stable order.
func Providers() []Provider {
	return []Provider{
		ProviderOpenAI, ProviderAnthropic, ProviderPerplexity,
		ProviderOllama, ProviderCrossref, ProviderSemanticScholar,
	}
}

// AgentTask is an immutable unit of work consumed by exactly one agent
// invocation.
type AgentTask struct {
	ID        string
	Kind      AgentKind
	Input     Tree
	CreatedAt time.Time
}

// Outcome of one agent invocation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeFallback Outcome = "success_via_fallback"
)

// AgentMetrics records how an invocation ran: timings, provider, attempts and
// fallback use. A fallback result is indistinguishable from success outside
// these fields.
type AgentMetrics struct {
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
	Provider             Provider      `json:"provider"`
	Attempts             int           `json:"attempts"`
	PermitWait           time.Duration `json:"permit_wait"`
	FallbackUsed         bool          `json:"fallback_used"`
	PrimaryFailureReason string        `json:"primary_failure_reason,omitempty"`
}

// AgentResult is the immutable outcome of one agent invocation.
type AgentResult struct {
	TaskID       string       `json:"task_id"`
	Outcome      Outcome      `json:"outcome"`
	Data         Tree         `json:"data,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Metrics      AgentMetrics `json:"metrics"`
}

// Succeeded reports whether the invocation produced usable data, whether via
// the primary provider or a fallback.
func (r AgentResult) Succeeded() bool { return r.Outcome != OutcomeFailure }

// TaskStatus tracks a task through the queue.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskRecord is the persisted envelope around a task and, once finished, its
// result.
type TaskRecord struct {
	ID        string
	Kind      AgentKind
	Status    TaskStatus
	Input     Tree
	Result    *AgentResult
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgentTaskPayload is the queue message dispatching one task to a worker.
type AgentTaskPayload struct {
	TaskID      string    `json:"task_id"`
	Kind        AgentKind `json:"kind"`
	Input       Tree      `json:"input"`
	RequestID   string    `json:"request_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Repositories (ports)

// TaskRepository persists task envelopes and results.
type TaskRepository interface {
	Create(ctx Context, rec TaskRecord) (string, error)
	UpdateStatus(ctx Context, id string, status TaskStatus, errMsg *string) error
	SaveResult(ctx Context, id string, res AgentResult) error
	Get(ctx Context, id string) (TaskRecord, error)
}

// ProviderUsageSnapshot mirrors in-process usage counters to storage for
// operator dashboards.
type ProviderUsageSnapshot struct {
	Provider           Provider
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AvgLatencyMillis   float64
	BreakerState       string
	LastRequestAt      time.Time
	RecordedAt         time.Time
}

// UsageRepository stores provider usage snapshots.
type UsageRepository interface {
	Save(ctx Context, snap ProviderUsageSnapshot) error
	Latest(ctx Context, provider Provider) (ProviderUsageSnapshot, error)
}

// Queue (port)

// Queue dispatches agent tasks to worker processes.
type Queue interface {
	EnqueueTask(ctx Context, payload AgentTaskPayload) (string, error)
}

// ProviderClient (port)

// ChatPrompt is a single request/response exchange with an AI provider; the
// orchestrator does not stream.
type ChatPrompt struct {
	System    string
	User      string
	MaxTokens int
}

// ProviderClient is the narrow surface the agents call. Implementations must
// return errors that preserve the HTTP status or a categorised marker so the
// retry policy can classify them.
type ProviderClient interface {
	Call(ctx Context, prompt ChatPrompt) (string, error)
}

// Context is an alias so ports read uniformly; adapters pass context.Context
// straight through.
type Context = context.Context
