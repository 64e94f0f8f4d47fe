package agents

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/discovery"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// PaperDiscovery fronts the discovery coordinator as an agent: it assembles
// the seed paper from the task input and stored content, resolves the run
// configuration, and persists what the coordinator found.
type PaperDiscovery struct {
	coord    *discovery.Coordinator
	papers   domain.PaperContentRepository
	store    domain.DiscoveryRepository
	defaults domain.DiscoveryConfig
}

// NewPaperDiscovery builds the discovery agent.
func NewPaperDiscovery(coord *discovery.Coordinator, papers domain.PaperContentRepository, store domain.DiscoveryRepository, defaults domain.DiscoveryConfig) *PaperDiscovery {
	return &PaperDiscovery{coord: coord, papers: papers, store: store, defaults: defaults}
}

// Kind implements Agent.
func (d *PaperDiscovery) Kind() domain.AgentKind { return domain.KindRelatedPaperDiscovery }

// Estimate implements Agent. The coordinator honours its own deadline, so the
// estimate is that deadline plus room for seed hydration and persistence.
func (d *PaperDiscovery) Estimate(task domain.AgentTask) time.Duration {
	cfg, err := d.resolveConfig(task.Input)
	if err != nil {
		cfg = d.defaults
	}
	return cfg.Timeout + 10*time.Second
}

// CanHandle implements Agent. Seeds given only by id are hydrated from the
// repository at execution time, so an id alone is acceptable here.
func (d *PaperDiscovery) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindRelatedPaperDiscovery {
		return false
	}
	if _, err := d.resolveConfig(task.Input); err != nil {
		return false
	}
	return discoveryPaperID(task.Input) != "" || discoverySeed(task.Input).Title != ""
}

func discoveryPaperID(in domain.Tree) string {
	if id := in.String("paperId", ""); id != "" {
		return id
	}
	if p := in.Child("paper"); p != nil {
		return p.String("id", "")
	}
	return ""
}

func discoverySeed(in domain.Tree) domain.SeedPaper {
	p := in.Child("paper")
	if p == nil {
		p = in
	}
	return domain.SeedPaper{
		PaperID:  discoveryPaperID(in),
		Title:    p.String("title", ""),
		Abstract: p.String("abstract", ""),
		Authors:  p.StringList("authors"),
		Year:     p.Int("year", 0),
		Venue:    p.String("venue", ""),
		DOI:      p.String("doi", ""),
		Tags:     p.StringList("tags"),
	}
}

// resolveConfig picks the run configuration. A full configuration object wins
// over a named preset, which wins over flat override keys on the input root.
func (d *PaperDiscovery) resolveConfig(in domain.Tree) (domain.DiscoveryConfig, error) {
	if cfg := in.Child("configuration"); cfg != nil {
		return overlayDiscoveryConfig(d.defaults, cfg), nil
	}
	if name := in.String("configurationType", ""); name != "" {
		if name == "citation" {
			name = domain.PresetCitations
		}
		preset, ok := domain.DiscoveryPreset(name)
		if !ok {
			return d.defaults, fmt.Errorf("unknown configurationType %q: %w", name, domain.ErrInvalidInput)
		}
		return preset, nil
	}
	return overlayDiscoveryConfig(d.defaults, in), nil
}

func overlayDiscoveryConfig(base domain.DiscoveryConfig, t domain.Tree) domain.DiscoveryConfig {
	out := base
	if ss := t.StringList("enabledSources"); len(ss) > 0 {
		out.EnabledSources = make([]domain.DiscoverySource, 0, len(ss))
		for _, s := range ss {
			out.EnabledSources = append(out.EnabledSources, domain.DiscoverySource(s))
		}
	}
	out.MaxPerSource = t.Int("maxPapersPerSource", t.Int("maxPerSource", base.MaxPerSource))
	out.MaxTotal = t.Int("maxTotalPapers", t.Int("maxTotal", base.MaxTotal))
	out.MinRelevance = t.Float("minimumRelevanceScore", t.Float("minRelevance", base.MinRelevance))
	if secs := t.Int("timeoutSeconds", 0); secs > 0 {
		out.Timeout = time.Duration(secs) * time.Second
	}
	out.Parallel = t.Bool("parallelExecution", t.Bool("parallel", base.Parallel))
	out.EnableSynthesis = t.Bool("enableAISynthesis", base.EnableSynthesis)
	return out
}

// Execute implements Agent.
func (d *PaperDiscovery) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	cfg, err := d.resolveConfig(task.Input)
	if err != nil {
		return nil, err
	}
	seed := discoverySeed(task.Input)
	log := observability.LoggerFromContext(ctx)

	if seed.PaperID != "" && d.papers != nil {
		stored, err := d.papers.FindByPaperID(ctx, seed.PaperID)
		if err != nil {
			log.Warn("seed hydration skipped",
				slog.String("paper_id", seed.PaperID), slog.Any("error", err))
		} else {
			if seed.Title == "" {
				seed.Title = stored.Title
			}
			if seed.Abstract == "" {
				seed.Abstract = stored.Abstract
			}
			if len(seed.Citations) == 0 {
				seed.Citations = stored.Citations
			}
		}
	}
	if seed.Title == "" {
		return nil, fmt.Errorf("seed paper has no title: %w", domain.ErrInvalidInput)
	}

	res, err := d.coord.Discover(ctx, seed, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover related papers: %w", err)
	}

	if seed.PaperID != "" && d.store != nil {
		if err := d.store.ReplaceByPaperID(ctx, seed.PaperID, res.Papers); err != nil {
			log.Error("persist discovered papers failed",
				slog.String("paper_id", seed.PaperID), slog.Any("error", err))
		}
	}

	return domain.Tree{
		"paper_id":  seed.PaperID,
		"papers":    res.Papers,
		"reports":   res.Reports,
		"synthesis": res.Synthesis,
		"total":     len(res.Papers),
	}, nil
}
