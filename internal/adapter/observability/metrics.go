package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of external provider requests by outcome",
		},
		[]string{"provider", "outcome"},
	)
	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "External provider request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)
	PermitWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_permit_wait_seconds",
			Help:    "Time spent waiting for a rate-limit permit",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"provider"},
	)
	BreakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half_open)",
		},
		[]string{"provider"},
	)

	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tasks_enqueued_total",
			Help: "Total number of agent tasks enqueued",
		},
		[]string{"kind"},
	)
	TasksProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_tasks_processing",
			Help: "Number of agent tasks currently processing",
		},
		[]string{"kind"},
	)
	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tasks_completed_total",
			Help: "Total number of agent tasks completed",
		},
		[]string{"kind"},
	)
	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tasks_failed_total",
			Help: "Total number of agent tasks failed",
		},
		[]string{"kind"},
	)
	FallbacksUsedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_fallbacks_used_total",
			Help: "Total number of tasks completed via a fallback path",
		},
		[]string{"kind"},
	)
	AgentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_task_duration_seconds",
			Help:    "End-to-end agent task duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	DiscoverySourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_source_duration_seconds",
			Help:    "Per-source discovery duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)
	DiscoverySourceTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_source_timeouts_total",
			Help: "Discovery sources that missed the run deadline",
		},
		[]string{"source"},
	)

	// Relevance outcome distribution
	RelevanceScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "discovery_relevance_score",
			Help:    "Distribution of discovered-paper relevance scores [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
	QualityScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quality_check_score",
			Help:    "Distribution of overall quality-check scores [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(PermitWaitDuration)
	prometheus.MustRegister(BreakerStateGauge)
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksProcessing)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(FallbacksUsedTotal)
	prometheus.MustRegister(AgentDuration)
	prometheus.MustRegister(DiscoverySourceDuration)
	prometheus.MustRegister(DiscoverySourceTimeoutsTotal)
	prometheus.MustRegister(RelevanceScoreHistogram)
	prometheus.MustRegister(QualityScoreHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueTask(kind string) {
	TasksEnqueuedTotal.WithLabelValues(kind).Inc()
}

func StartProcessingTask(kind string) {
	TasksProcessing.WithLabelValues(kind).Inc()
}

func CompleteTask(kind string) {
	TasksProcessing.WithLabelValues(kind).Dec()
	TasksCompletedTotal.WithLabelValues(kind).Inc()
}

func FailTask(kind string) {
	TasksProcessing.WithLabelValues(kind).Dec()
	TasksFailedTotal.WithLabelValues(kind).Inc()
}

func RecordFallback(kind string) {
	FallbacksUsedTotal.WithLabelValues(kind).Inc()
}

func ObserveAgentDuration(kind string, d time.Duration) {
	AgentDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordProviderCall records one settled provider request.
func RecordProviderCall(provider, outcome string, d time.Duration) {
	ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func RecordPermitWait(provider string, d time.Duration) {
	PermitWaitDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// SetBreakerState publishes a breaker state by name.
func SetBreakerState(provider, state string) {
	var code float64
	switch state {
	case "open":
		code = 1
	case "half_open":
		code = 2
	}
	BreakerStateGauge.WithLabelValues(provider).Set(code)
}

func ObserveDiscoverySource(source string, d time.Duration, timedOut bool) {
	DiscoverySourceDuration.WithLabelValues(source).Observe(d.Seconds())
	if timedOut {
		DiscoverySourceTimeoutsTotal.WithLabelValues(source).Inc()
	}
}

// ObserveRelevance records a discovered paper's relevance score.
func ObserveRelevance(score float64) {
	if score >= 0 && score <= 1 {
		RelevanceScoreHistogram.Observe(score)
		scoreDrift.Record("relevance", score)
	}
}

// ObserveQualityScore records a quality-check overall score.
func ObserveQualityScore(score float64) {
	if score >= 0 && score <= 1 {
		QualityScoreHistogram.Observe(score)
		scoreDrift.Record("quality_overall", score)
	}
}
