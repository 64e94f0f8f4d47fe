package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
)

// Research modes. Each enabled mode costs one provider query.
const (
	ModeFactVerification = "fact_verification"
	ModeRelatedPapers    = "related_papers"
	ModeTrends           = "trends"
	ModeMethodology      = "methodology"
	ModeExpertOpinions   = "expert_opinions"
)

// ResearchModes returns every known mode in a stable order.
func ResearchModes() []string {
	return []string{ModeFactVerification, ModeRelatedPapers, ModeTrends, ModeMethodology, ModeExpertOpinions}
}

const researchSystemPrompt = "You are an academic research assistant surveying current research. Respond with JSON only, no prose."

const researchWorkers = 3

// Researcher queries a search-backed provider once per enabled mode and
// synthesizes the findings. Modes fail independently; the invocation fails
// only when every mode does.
type Researcher struct {
	core   *Core
	papers domain.PaperContentRepository
}

// NewResearcher builds the research agent. papers may be nil; it is only read
// when a task names a paper without carrying its topic or abstract.
func NewResearcher(core *Core, papers domain.PaperContentRepository) *Researcher {
	return &Researcher{core: core, papers: papers}
}

// Kind implements Agent.
func (r *Researcher) Kind() domain.AgentKind { return domain.KindPerplexityResearcher }

// Estimate implements Agent.
func (r *Researcher) Estimate(task domain.AgentTask) time.Duration {
	modes := 2
	if in, err := researchInput(task.Input); err == nil {
		modes = len(in.Modes)
	}
	return 20*time.Second + time.Duration(modes)*15*time.Second
}

// CanHandle implements Agent.
func (r *Researcher) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindPerplexityResearcher {
		return false
	}
	_, err := researchInput(task.Input)
	return err == nil
}

type researchTask struct {
	PaperID  string
	Topic    string
	Abstract string
	Claims   []string
	Modes    []string
}

// modeSwitches maps the boolean input keys to their research modes, in the
// order modes run when several switches are set.
var modeSwitches = []struct {
	key  string
	mode string
}{
	{"verifyFacts", ModeFactVerification},
	{"findRelated", ModeRelatedPapers},
	{"analyzeTrends", ModeTrends},
	{"verifyMethodology", ModeMethodology},
	{"expertOpinions", ModeExpertOpinions},
}

func researchInput(in domain.Tree) (researchTask, error) {
	t := researchTask{
		PaperID:  in.String("paperId", ""),
		Topic:    in.String("topic", in.String("title", "")),
		Abstract: in.String("abstract", ""),
		Claims:   in.StringList("claims"),
	}
	if t.PaperID == "" && t.Topic == "" && t.Abstract == "" {
		return t, fmt.Errorf("missing paperId, topic or abstract: %w", domain.ErrInvalidInput)
	}

	modes := in.StringList("researchModes")
	if len(modes) == 0 {
		modes = in.StringList("modes")
	}
	if len(modes) == 0 {
		for _, s := range modeSwitches {
			if in.Bool(s.key, false) {
				modes = append(modes, s.mode)
			}
		}
	}
	if len(modes) == 0 {
		modes = []string{ModeFactVerification, ModeRelatedPapers}
	}
	seen := make(map[string]bool, len(modes))
	for _, m := range modes {
		m = strings.ToLower(strings.TrimSpace(m))
		if !knownResearchMode(m) {
			return t, fmt.Errorf("unknown research mode %q: %w", m, domain.ErrInvalidInput)
		}
		if !seen[m] {
			seen[m] = true
			t.Modes = append(t.Modes, m)
		}
	}

	t.fillClaims()
	return t, nil
}

func (t *researchTask) fillClaims() {
	if len(t.Claims) == 0 && t.Abstract != "" {
		for _, c := range ExtractClaims(t.Abstract, maxClaims) {
			t.Claims = append(t.Claims, c.Text)
		}
	}
	if len(t.Claims) > maxClaims {
		t.Claims = t.Claims[:maxClaims]
	}
}

func knownResearchMode(m string) bool {
	for _, known := range ResearchModes() {
		if m == known {
			return true
		}
	}
	return false
}

// ModeResult is the outcome of one research mode.
type ModeResult struct {
	Mode     string   `json:"mode"`
	Findings string   `json:"findings,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Execute implements Agent.
func (r *Researcher) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := researchInput(task.Input)
	if err != nil {
		return nil, err
	}
	log := observability.LoggerFromContext(ctx)

	if in.Topic == "" && in.Abstract == "" && r.papers != nil {
		stored, err := r.papers.FindByPaperID(ctx, in.PaperID)
		if err != nil {
			log.Warn("research seed hydration skipped",
				slog.String("paper_id", in.PaperID), slog.Any("error", err))
		} else {
			in.Topic = stored.Title
			in.Abstract = stored.Abstract
			in.fillClaims()
		}
	}
	if in.Topic == "" && in.Abstract == "" {
		return nil, fmt.Errorf("paper %s has no title or abstract: %w", in.PaperID, domain.ErrInvalidInput)
	}

	results := make([]ModeResult, len(in.Modes))
	modeErrs := make([]error, len(in.Modes))
	fns := make([]func(domain.Context) error, len(in.Modes))
	for i, mode := range in.Modes {
		fns[i] = func(ctx domain.Context) error {
			res, err := r.runMode(ctx, mode, in)
			if err != nil {
				log.Warn("research mode failed",
					slog.String("mode", mode), slog.Any("error", err))
				modeErrs[i] = fmt.Errorf("mode %s: %w", mode, err)
				results[i] = ModeResult{Mode: mode, Error: err.Error()}
				return nil
			}
			results[i] = res
			return nil
		}
	}
	if err := RunParallel(ctx, researchWorkers, fns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("research aborted: %w", err)
	}

	var succeeded []ModeResult
	var failures []error
	for i := range results {
		if modeErrs[i] != nil {
			failures = append(failures, modeErrs[i])
			continue
		}
		succeeded = append(succeeded, results[i])
	}
	if len(succeeded) == 0 {
		return nil, fmt.Errorf("all research modes failed: %w", errors.Join(failures...))
	}

	synthesis, err := r.synthesize(ctx, in, succeeded)
	if err != nil {
		log.Warn("research synthesis skipped", slog.Any("error", err))
		synthesis = ""
	}

	return domain.Tree{
		"paper_id":  in.PaperID,
		"topic":     in.Topic,
		"claims":    in.Claims,
		"modes":     results,
		"synthesis": synthesis,
	}, nil
}

func (r *Researcher) runMode(ctx domain.Context, mode string, in researchTask) (ModeResult, error) {
	var parsed struct {
		Findings string   `json:"findings"`
		Sources  []string `json:"sources"`
	}
	err := r.core.CallProviderJSON(ctx, domain.ProviderPerplexity, domain.ChatPrompt{
		System: researchSystemPrompt,
		User:   modeQuery(mode, in),
	}, &parsed)
	if err != nil {
		return ModeResult{}, err
	}
	if strings.TrimSpace(parsed.Findings) == "" {
		return ModeResult{}, fmt.Errorf("mode %s response carried no findings: %w", mode, domain.ErrParse)
	}
	return ModeResult{Mode: mode, Findings: parsed.Findings, Sources: parsed.Sources}, nil
}

func modeQuery(mode string, in researchTask) string {
	var b strings.Builder
	switch mode {
	case ModeFactVerification:
		b.WriteString("Verify the following claims against the published literature and report what it supports or contradicts.\n")
	case ModeRelatedPapers:
		b.WriteString("Find papers closely related to the topic below and describe how each relates to it.\n")
	case ModeTrends:
		b.WriteString("Survey recent developments and emerging trends for the topic below.\n")
	case ModeMethodology:
		b.WriteString("Describe the methods commonly used to study the topic below, with their trade-offs.\n")
	case ModeExpertOpinions:
		b.WriteString("Survey notable expert opinions and open debates on the topic below.\n")
	}
	if in.Topic != "" {
		fmt.Fprintf(&b, "\nTopic: %s\n", in.Topic)
	}
	if mode == ModeFactVerification && len(in.Claims) > 0 {
		b.WriteString("\nClaims:\n")
		for i, c := range in.Claims {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}
	b.WriteString(`
Respond with JSON:
{"findings": string, "sources": [string]}`)
	return b.String()
}

func (r *Researcher) synthesize(ctx domain.Context, in researchTask, results []ModeResult) (string, error) {
	var b strings.Builder
	b.WriteString("Synthesize the following research findings into one short narrative that answers how the topic stands in the literature today.\n")
	if in.Topic != "" {
		fmt.Fprintf(&b, "\nTopic: %s\n", in.Topic)
	}
	for _, res := range results {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", res.Mode, res.Findings)
	}
	b.WriteString(`
Respond with JSON:
{"synthesis": string}`)

	var parsed struct {
		Synthesis string `json:"synthesis"`
	}
	if err := r.core.CallProviderJSON(ctx, domain.ProviderAnthropic, domain.ChatPrompt{
		System: analysisSystemPrompt,
		User:   b.String(),
	}, &parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.Synthesis) == "" {
		return "", fmt.Errorf("synthesis response was empty: %w", domain.ErrParse)
	}
	return parsed.Synthesis, nil
}
