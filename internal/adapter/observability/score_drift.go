package observability

import (
	"log/slog"
	"sync"
)

// ScoreDriftMonitor watches a windowed average of scores against a baseline
// and warns when the gap exceeds the threshold. Used for quality-check and
// relevance scores, whose distributions should stay stable across provider
// and prompt changes.
type ScoreDriftMonitor struct {
	mu             sync.Mutex
	baselines      map[string]float64
	windows        map[string][]float64
	windowSize     int
	driftThreshold float64
}

// NewScoreDriftMonitor creates a monitor. windowSize scores are collected per
// metric before drift is evaluated.
func NewScoreDriftMonitor(windowSize int, driftThreshold float64) *ScoreDriftMonitor {
	if windowSize <= 0 {
		windowSize = 10
	}
	if driftThreshold <= 0 {
		driftThreshold = 0.15
	}
	return &ScoreDriftMonitor{
		baselines:      make(map[string]float64),
		windows:        make(map[string][]float64),
		windowSize:     windowSize,
		driftThreshold: driftThreshold,
	}
}

// SetBaseline fixes the expected average for a metric.
func (m *ScoreDriftMonitor) SetBaseline(metric string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[metric] = score
}

// Record adds a score and reports drift once the window is full. The first
// full window becomes the baseline when none was set explicitly.
func (m *ScoreDriftMonitor) Record(metric string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := append(m.windows[metric], score)
	if len(w) > m.windowSize {
		w = w[1:]
	}
	m.windows[metric] = w

	if len(w) < m.windowSize {
		return
	}
	if _, ok := m.baselines[metric]; !ok {
		var sum float64
		for _, s := range w {
			sum += s
		}
		m.baselines[metric] = sum / float64(len(w))
		return
	}
	drift := m.driftLocked(metric)
	if drift > m.driftThreshold {
		slog.Warn("score drift detected",
			slog.String("metric", metric),
			slog.Float64("drift", drift),
			slog.Float64("threshold", m.driftThreshold))
	}
}

// Drift returns the current absolute gap between the window average and the
// baseline, or zero when either is missing.
func (m *ScoreDriftMonitor) Drift(metric string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driftLocked(metric)
}

func (m *ScoreDriftMonitor) driftLocked(metric string) float64 {
	baseline, ok := m.baselines[metric]
	if !ok {
		return 0
	}
	w := m.windows[metric]
	if len(w) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w {
		sum += s
	}
	drift := sum/float64(len(w)) - baseline
	if drift < 0 {
		drift = -drift
	}
	return drift
}

// scoreDrift is the process-wide monitor fed by ObserveQualityScore and
// ObserveRelevance. The first 50 scores per metric set the baseline.
var scoreDrift = NewScoreDriftMonitor(50, 0.2)

// Reset clears all baselines and windows.
func (m *ScoreDriftMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines = make(map[string]float64)
	m.windows = make(map[string][]float64)
}
