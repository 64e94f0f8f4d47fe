package agents

import (
	"strings"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/scholarly"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/config"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/discovery"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Registry maps task kinds to their primary agents. It is populated once at
// startup and read-only afterwards, so lookups need no synchronisation.
type Registry struct {
	agents map[domain.AgentKind]Agent
}

// NewRegistry builds a registry from the given agents, keyed by Kind.
func NewRegistry(agents ...Agent) *Registry {
	m := make(map[domain.AgentKind]Agent, len(agents))
	for _, a := range agents {
		m[a.Kind()] = a
	}
	return &Registry{agents: m}
}

// Get returns the agent for kind.
func (r *Registry) Get(kind domain.AgentKind) (Agent, bool) {
	a, ok := r.agents[kind]
	return a, ok
}

// Kinds returns the registered kinds in the stable domain order.
func (r *Registry) Kinds() []domain.AgentKind {
	out := make([]domain.AgentKind, 0, len(r.agents))
	for _, k := range domain.AgentKinds() {
		if _, ok := r.agents[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// FallbackRegistry maps task kinds to at most one local fallback agent.
// Immutable after startup.
type FallbackRegistry struct {
	agents map[domain.AgentKind]Agent
}

// NewFallbackRegistry builds a fallback registry from the given agents.
func NewFallbackRegistry(agents ...Agent) *FallbackRegistry {
	m := make(map[domain.AgentKind]Agent, len(agents))
	for _, a := range agents {
		m[a.Kind()] = a
	}
	return &FallbackRegistry{agents: m}
}

// Get returns the fallback registered for kind.
func (r *FallbackRegistry) Get(kind domain.AgentKind) (Agent, bool) {
	a, ok := r.agents[kind]
	return a, ok
}

// Has reports whether a fallback is registered for kind.
func (r *FallbackRegistry) Has(kind domain.AgentKind) bool {
	_, ok := r.agents[kind]
	return ok
}

// Available returns the kinds with a registered fallback in stable order.
func (r *FallbackRegistry) Available() []domain.AgentKind {
	out := make([]domain.AgentKind, 0, len(r.agents))
	for _, k := range domain.AgentKinds() {
		if _, ok := r.agents[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Repos bundles the persistence ports agents write their outputs through.
type Repos struct {
	Papers      domain.PaperContentRepository
	Summaries   domain.SummaryRepository
	Discoveries domain.DiscoveryRepository
	Tags        domain.TagRepository
}

// BuildAgents assembles the primary registry with every agent kind wired to
// its providers and repositories.
func BuildAgents(core *Core, repos Repos, crossref *scholarly.Crossref, coord *discovery.Coordinator, discoveryDefaults domain.DiscoveryConfig) *Registry {
	return NewRegistry(
		NewPaperProcessor(core, repos.Papers),
		NewMetadataEnhancer(core, crossref, repos.Tags),
		NewContentSummarizer(core, repos.Summaries),
		NewConceptExplainer(core),
		NewCitationFormatter(core, repos.Papers),
		NewQualityChecker(core),
		NewResearcher(core, repos.Papers),
		NewPaperDiscovery(coord, repos.Papers, repos.Discoveries, discoveryDefaults),
	)
}

// BuildFallbacks assembles the fallback registry from configuration.
// EnabledFallbacks is a comma list of agent kinds, or "all"; kinds without a
// fallback implementation are skipped.
func BuildFallbacks(cfg config.Config, core *Core, summaries domain.SummaryRepository, papers domain.PaperContentRepository) *FallbackRegistry {
	available := map[domain.AgentKind]Agent{
		domain.KindContentSummarizer: NewFallbackSummarizer(core, summaries),
		domain.KindConceptExplainer:  NewFallbackExplainer(core),
		domain.KindCitationFormatter: NewRuleBasedCitationFormatter(papers),
		domain.KindQualityChecker:    NewHeuristicQualityChecker(),
	}
	selected := strings.ToLower(strings.TrimSpace(cfg.EnabledFallbacks))
	if selected == "" || selected == "none" {
		return NewFallbackRegistry()
	}

	var picked []Agent
	if selected == "all" {
		for _, kind := range domain.AgentKinds() {
			if a, ok := available[kind]; ok {
				picked = append(picked, a)
			}
		}
	} else {
		for _, name := range strings.Split(selected, ",") {
			if a, ok := available[domain.AgentKind(strings.TrimSpace(name))]; ok {
				picked = append(picked, a)
			}
		}
	}
	return NewFallbackRegistry(picked...)
}
