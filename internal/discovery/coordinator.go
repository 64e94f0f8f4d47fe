// Package discovery finds papers related to a seed paper by fanning out to
// independent source strategies, then scoring, deduplicating and ranking the
// candidates under a joint deadline.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Source is one discovery strategy. Find returns up to limit candidates; it
// must honor ctx, but the coordinator's deadline holds even against a source
// that does not.
type Source interface {
	Name() domain.DiscoverySource
	Find(ctx domain.Context, seed domain.SeedPaper, limit int) ([]domain.SourcePaper, error)
}

// Synthesizer writes a short prose synthesis of how the discovered papers
// relate to the seed. Optional; failures only cost the synthesis text.
type Synthesizer interface {
	Synthesize(ctx domain.Context, seed domain.SeedPaper, papers []domain.DiscoveredPaper) (string, error)
}

// Coordinator runs discovery over a fixed set of sources.
type Coordinator struct {
	sources  map[domain.DiscoverySource]Source
	synth    Synthesizer
	validate *validator.Validate
}

// New builds a Coordinator. synth may be nil.
func New(sources []Source, synth Synthesizer) *Coordinator {
	m := make(map[domain.DiscoverySource]Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	return &Coordinator{sources: m, synth: synth, validate: validator.New()}
}

// configRules mirrors the numeric constraints of DiscoveryConfig for
// struct validation; source membership is checked separately.
type configRules struct {
	MaxPerSource int           `validate:"gt=0"`
	MaxTotal     int           `validate:"gt=0"`
	MinRelevance float64       `validate:"gte=0,lte=1"`
	Timeout      time.Duration `validate:"gt=0"`
}

// ValidateConfig returns a list of problems with cfg, empty when it is usable.
func (c *Coordinator) ValidateConfig(cfg domain.DiscoveryConfig) []string {
	var msgs []string
	if len(cfg.EnabledSources) == 0 {
		msgs = append(msgs, "enabledsources: min")
	}
	for _, s := range cfg.EnabledSources {
		if !s.Valid() {
			msgs = append(msgs, fmt.Sprintf("enabledsources: unknown source %q", s))
		}
	}
	if err := c.validate.Struct(configRules{
		MaxPerSource: cfg.MaxPerSource,
		MaxTotal:     cfg.MaxTotal,
		MinRelevance: cfg.MinRelevance,
		Timeout:      cfg.Timeout,
	}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				msgs = append(msgs, strings.ToLower(fe.Field())+": "+fe.Tag())
			}
		} else {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

type sourceOutcome struct {
	source   domain.DiscoverySource
	papers   []domain.SourcePaper
	err      error
	duration time.Duration
}

// Discover runs every enabled source against the seed and returns the merged,
// ranked result. The run never exceeds cfg.Timeout by more than scheduling
// noise: sources still in flight when the deadline fires are cancelled and
// their late results discarded. A failed or empty source is not an error;
// only invalid input or caller cancellation fail the run.
func (c *Coordinator) Discover(ctx domain.Context, seed domain.SeedPaper, cfg domain.DiscoveryConfig) (*domain.DiscoveryResult, error) {
	if msgs := c.ValidateConfig(cfg); len(msgs) > 0 {
		return nil, fmt.Errorf("op=discovery.Discover: %s: %w", strings.Join(msgs, "; "), domain.ErrInvalidInput)
	}
	if seed.PaperID == "" || strings.TrimSpace(seed.Title) == "" {
		return nil, fmt.Errorf("op=discovery.Discover: seed paper needs id and title: %w", domain.ErrInvalidInput)
	}

	lg := observability.LoggerFromContext(ctx)
	started := time.Now()

	reports := make(map[domain.DiscoverySource]*domain.SourceReport, len(cfg.EnabledSources))
	var enabled []Source
	for _, name := range cfg.EnabledSources {
		if _, dup := reports[name]; dup {
			continue
		}
		rep := &domain.SourceReport{Source: name}
		reports[name] = rep
		src, ok := c.sources[name]
		if !ok {
			rep.Err = "source not configured"
			continue
		}
		enabled = append(enabled, src)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// Buffered to the number of launched sources: a straggler's send lands in
	// the buffer after the gather loop has moved on, so a source that ignores
	// cancellation can never wedge the coordinator.
	outcomes := make(chan sourceOutcome, len(enabled))
	if cfg.Parallel {
		for _, src := range enabled {
			go c.runSource(runCtx, src, seed, cfg.MaxPerSource, outcomes)
		}
	} else {
		go func() {
			for _, src := range enabled {
				c.runSource(runCtx, src, seed, cfg.MaxPerSource, outcomes)
			}
		}()
	}

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()

	var collected []domain.SourcePaper
	done := make(map[domain.DiscoverySource]bool, len(enabled))
	pending := len(enabled)
gather:
	for pending > 0 {
		select {
		case out := <-outcomes:
			pending--
			done[out.source] = true
			rep := reports[out.source]
			rep.Duration = out.duration
			rep.Found = len(out.papers)
			if out.err != nil {
				rep.Err = out.err.Error()
				rep.TimedOut = errors.Is(out.err, context.DeadlineExceeded)
				observability.ObserveDiscoverySource(string(out.source), out.duration, rep.TimedOut)
				lg.Warn("discovery source failed",
					slog.String("source", string(out.source)),
					slog.Duration("duration", out.duration),
					slog.Any("error", out.err))
				continue
			}
			observability.ObserveDiscoverySource(string(out.source), out.duration, false)
			collected = append(collected, out.papers...)
		case <-deadline.C:
			cancel()
			for _, src := range enabled {
				if done[src.Name()] {
					continue
				}
				rep := reports[src.Name()]
				rep.Err = "deadline exceeded"
				rep.TimedOut = true
				rep.Discarded = true
				observability.ObserveDiscoverySource(string(src.Name()), cfg.Timeout, true)
			}
			lg.Warn("discovery deadline reached, proceeding with partial results",
				slog.Int("pending_sources", pending),
				slog.Duration("timeout", cfg.Timeout))
			break gather
		case <-ctx.Done():
			return nil, fmt.Errorf("op=discovery.Discover: %w", ctx.Err())
		}
	}
	// Sources racing the cancellation may deliver their outcomes before the
	// Done case fires; caller cancellation still fails the run.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("op=discovery.Discover: %w", err)
	}

	papers := c.merge(seed, collected, cfg, started)
	for _, p := range papers {
		for _, s := range p.Sources {
			if rep, ok := reports[domain.DiscoverySource(s)]; ok {
				rep.Kept++
			}
		}
	}

	result := &domain.DiscoveryResult{
		SeedPaperID: seed.PaperID,
		Papers:      papers,
		Reports:     orderedReports(cfg.EnabledSources, reports),
		StartedAt:   started,
		Duration:    time.Since(started),
	}

	if cfg.EnableSynthesis && c.synth != nil && len(papers) > 0 {
		text, err := c.synth.Synthesize(ctx, seed, papers)
		if err != nil {
			lg.Warn("discovery synthesis failed", slog.Any("error", err))
		} else {
			result.Synthesis = text
		}
	}

	lg.Info("discovery finished",
		slog.String("paper_id", seed.PaperID),
		slog.Int("candidates", len(collected)),
		slog.Int("papers", len(papers)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (c *Coordinator) runSource(ctx domain.Context, src Source, seed domain.SeedPaper, limit int, out chan<- sourceOutcome) {
	start := time.Now()
	papers, err := src.Find(ctx, seed, limit)
	d := time.Since(start)

	for i := range papers {
		papers[i].Source = src.Name()
	}
	if len(papers) > limit {
		papers = papers[:limit]
	}
	out <- sourceOutcome{source: src.Name(), papers: papers, err: err, duration: d}
}

// merge filters, scores, deduplicates and ranks raw candidates.
func (c *Coordinator) merge(seed domain.SeedPaper, collected []domain.SourcePaper, cfg domain.DiscoveryConfig, now time.Time) []domain.DiscoveredPaper {
	best := make(map[string]*domain.DiscoveredPaper, len(collected))
	var order []string

	for _, cand := range collected {
		if !viable(seed, cand) {
			continue
		}
		score := relevance(seed, cand, now)
		if score < cfg.MinRelevance {
			continue
		}
		observability.ObserveRelevance(score)

		key := dedupKey(cand)
		if cur, ok := best[key]; ok {
			cur.Sources = appendUnique(cur.Sources, string(cand.Source))
			if score > cur.Relevance {
				merged := c.toDiscovered(seed, cand, score, now)
				merged.Sources = cur.Sources
				*cur = merged
			}
			continue
		}
		d := c.toDiscovered(seed, cand, score, now)
		best[key] = &d
		order = append(order, key)
	}

	papers := make([]domain.DiscoveredPaper, 0, len(order))
	for _, k := range order {
		papers = append(papers, *best[k])
	}
	sort.SliceStable(papers, func(i, j int) bool {
		return papers[i].Relevance > papers[j].Relevance
	})
	if len(papers) > cfg.MaxTotal {
		papers = papers[:cfg.MaxTotal]
	}
	return papers
}

func (c *Coordinator) toDiscovered(seed domain.SeedPaper, cand domain.SourcePaper, score float64, now time.Time) domain.DiscoveredPaper {
	return domain.DiscoveredPaper{
		PaperID:        ulid.Make().String(),
		Title:          cand.Title,
		Authors:        cand.Authors,
		Year:           cand.Year,
		Venue:          cand.Venue,
		DOI:            cand.DOI,
		URL:            cand.URL,
		AbstractSnip:   cand.AbstractSnip,
		CitationCount:  cand.CitationCount,
		Relevance:      score,
		Sources:        []string{string(cand.Source)},
		Relationship:   cand.Relationship,
		DiscoveredAt:   now,
		SeedPaperID:    seed.PaperID,
		SeedPaperTitle: seed.Title,
	}
}

func orderedReports(names []domain.DiscoverySource, reports map[domain.DiscoverySource]*domain.SourceReport) []domain.SourceReport {
	out := make([]domain.SourceReport, 0, len(reports))
	seen := make(map[domain.DiscoverySource]struct{}, len(reports))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if rep, ok := reports[n]; ok {
			out = append(out, *rep)
		}
	}
	return out
}

func appendUnique(ss []string, s string) []string {
	for _, have := range ss {
		if have == s {
			return ss
		}
	}
	return append(ss, s)
}
