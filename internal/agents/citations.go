package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// Citation styles the formatter renders.
const (
	StyleAPA     = "APA"
	StyleMLA     = "MLA"
	StyleChicago = "Chicago"
	StyleIEEE    = "IEEE"
	StyleHarvard = "Harvard"
)

// CitationStyles returns every supported style in a stable order.
func CitationStyles() []string {
	return []string{StyleAPA, StyleMLA, StyleChicago, StyleIEEE, StyleHarvard}
}

const (
	citationBatchSize = 5
	citationWorkers   = 3
	contextRadius     = 50
)

// RawCitation is one in-text citation match before structuring.
type RawCitation struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Context  string `json:"context,omitempty"`
	Section  string `json:"section,omitempty"`
	Position int    `json:"position"`
}

// StructuredCitation carries the bibliographic fields recovered for one raw
// citation. The raw text rides inside the record, so formatting never has to
// pair structured entries with raw matches by list position.
type StructuredCitation struct {
	domain.Citation
	Volume     string  `json:"volume,omitempty"`
	Issue      string  `json:"issue,omitempty"`
	Pages      string  `json:"pages,omitempty"`
	Type       string  `json:"type,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Bibliography is one style's rendered reference list, or the error that
// prevented rendering it.
type Bibliography struct {
	Style   string   `json:"style"`
	Entries []string `json:"entries,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Citation shapes: numeric [12], author-year (Smith, 2021), and Smith et
// al., 2021 outside parentheses.
var (
	numericCiteRe       = regexp.MustCompile(`\[\d{1,3}(?:\s*[,;–-]\s*\d{1,3})*\]`)
	parentheticalCiteRe = regexp.MustCompile(`\([A-Z][\pL'’.-]+(?:\s+(?:&|and)\s+[A-Z][\pL'’.-]+)*(?:\s+et al\.?)?,\s+\d{4}[a-z]?(?:;\s*[^)]+)?\)`)
	etAlCiteRe          = regexp.MustCompile(`\b[A-Z][\pL'’-]+(?:\s+(?:&|and)\s+[A-Z][\pL'’-]+)*\s+et al\.,?\s+\(?\d{4}[a-z]?\)?`)
	headingRe           = regexp.MustCompile(`(?m)^\s*(?:\d+(?:\.\d+)*\.?\s+)?(Introduction|Background|Related Work|Methods?|Methodology|Materials and Methods|Experiments?|Results|Discussion|Conclusions?|References|Bibliography)\s*$`)
)

// ExtractCitations scans document text for known citation shapes, capturing
// surrounding context and the enclosing section label.
func ExtractCitations(text string) []RawCitation {
	type span struct{ start, end int }
	var spans []span
	for _, re := range []*regexp.Regexp{numericCiteRe, parentheticalCiteRe, etAlCiteRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	headings := headingSpans(text)
	out := make([]RawCitation, 0, len(spans))
	prevEnd := -1
	for _, sp := range spans {
		// Overlapping matches are the same citation seen by two patterns.
		if sp.start < prevEnd {
			continue
		}
		prevEnd = sp.end
		out = append(out, RawCitation{
			Index:    len(out),
			Text:     text[sp.start:sp.end],
			Context:  surrounding(text, sp.start, sp.end),
			Section:  sectionAt(headings, sp.start),
			Position: sp.start,
		})
	}
	return out
}

func surrounding(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return textx.CollapseWhitespace(text[lo:hi])
}

type headingSpan struct {
	pos   int
	label string
}

func headingSpans(text string) []headingSpan {
	var out []headingSpan
	for _, loc := range headingRe.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[loc[2]:loc[3]])
		out = append(out, headingSpan{pos: loc[0], label: sectionLabel(name)})
	}
	return out
}

func sectionLabel(heading string) string {
	switch {
	case strings.HasPrefix(heading, "introduction"), strings.HasPrefix(heading, "background"):
		return "introduction"
	case strings.HasPrefix(heading, "method"), strings.HasPrefix(heading, "materials"), strings.HasPrefix(heading, "experiment"):
		return "methods"
	case strings.HasPrefix(heading, "reference"), strings.HasPrefix(heading, "bibliograph"):
		return "references"
	default:
		return "main"
	}
}

func sectionAt(headings []headingSpan, pos int) string {
	label := "main"
	for _, h := range headings {
		if h.pos > pos {
			break
		}
		label = h.label
	}
	return label
}

// CitationFormatter runs the two-stage citation pipeline: regex extraction
// over the document, AI structuring in small batches, then per-style
// bibliography rendering.
type CitationFormatter struct {
	core *Core
	repo domain.PaperContentRepository
}

// NewCitationFormatter builds the primary formatter agent.
func NewCitationFormatter(core *Core, repo domain.PaperContentRepository) *CitationFormatter {
	return &CitationFormatter{core: core, repo: repo}
}

// Kind implements Agent.
func (f *CitationFormatter) Kind() domain.AgentKind { return domain.KindCitationFormatter }

// Estimate implements Agent.
func (f *CitationFormatter) Estimate(domain.AgentTask) time.Duration { return 45 * time.Second }

// CanHandle implements Agent.
func (f *CitationFormatter) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindCitationFormatter {
		return false
	}
	_, err := citationInput(task.Input)
	return err == nil
}

type citationInputs struct {
	PaperID  string
	Document string
	Styles   []string
}

func citationInput(in domain.Tree) (citationInputs, error) {
	doc := in.String("documentContent", "")
	paperID := in.String("paperId", "")
	if strings.TrimSpace(doc) == "" && paperID == "" {
		return citationInputs{}, fmt.Errorf("missing documentContent or paperId: %w", domain.ErrInvalidInput)
	}
	return citationInputs{PaperID: paperID, Document: doc, Styles: requestedStyles(in)}, nil
}

// requestedStyles resolves the citationStyles list against the known styles;
// unknown names are ignored and an empty request defaults to APA.
func requestedStyles(in domain.Tree) []string {
	seen := make(map[string]bool, 5)
	var out []string
	for _, s := range in.StringList("citationStyles") {
		for _, k := range CitationStyles() {
			if strings.EqualFold(strings.TrimSpace(s), k) && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	if len(out) == 0 {
		return []string{StyleAPA}
	}
	return out
}

// Execute implements Agent.
func (f *CitationFormatter) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := citationInput(task.Input)
	if err != nil {
		return nil, err
	}

	raws, err := loadRawCitations(ctx, f.repo, in)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return citationResult(in, nil, nil), nil
	}

	structured, err := f.structure(ctx, raws)
	if err != nil {
		return nil, err
	}
	bibs := f.render(ctx, in.Styles, structured)

	if in.PaperID != "" {
		f.persist(ctx, in.PaperID, structured)
	}
	return citationResult(in, structured, bibs), nil
}

func citationResult(in citationInputs, cites []StructuredCitation, bibs []Bibliography) domain.Tree {
	if cites == nil {
		cites = []StructuredCitation{}
	}
	if bibs == nil {
		bibs = []Bibliography{}
	}
	return domain.Tree{
		"paper_id":       in.PaperID,
		"citation_count": len(cites),
		"citations":      cites,
		"bibliographies": bibs,
		"styles":         in.Styles,
	}
}

// loadRawCitations prefers inline document text; given only a paper ID it
// reuses the stored citations, or re-extracts from the stored body.
func loadRawCitations(ctx domain.Context, repo domain.PaperContentRepository, in citationInputs) ([]RawCitation, error) {
	if strings.TrimSpace(in.Document) != "" {
		return ExtractCitations(in.Document), nil
	}
	content, err := repo.FindByPaperID(ctx, in.PaperID)
	if err != nil {
		return nil, fmt.Errorf("load paper %s: %w", in.PaperID, err)
	}
	if len(content.Citations) > 0 {
		out := make([]RawCitation, 0, len(content.Citations))
		for i, c := range content.Citations {
			if strings.TrimSpace(c.RawText) == "" {
				continue
			}
			out = append(out, RawCitation{Index: len(out), Text: c.RawText, Section: "references", Position: i})
		}
		return out, nil
	}
	return ExtractCitations(paperText(content)), nil
}

func paperText(c domain.PaperContent) string {
	var b strings.Builder
	b.WriteString(c.Abstract)
	for _, s := range c.Sections {
		b.WriteString("\n\n")
		b.WriteString(s.Title)
		b.WriteString("\n")
		b.WriteString(s.Content)
	}
	return b.String()
}

// structure recovers bibliographic fields for each raw citation in batches.
// A batch that fails retryably fails the whole stage so the caller can fall
// back; a batch that fails permanently degrades to minimal records.
func (f *CitationFormatter) structure(ctx domain.Context, raws []RawCitation) ([]StructuredCitation, error) {
	out := make([]StructuredCitation, len(raws))
	log := observability.LoggerFromContext(ctx)

	var fns []func(domain.Context) error
	for start := 0; start < len(raws); start += citationBatchSize {
		end := start + citationBatchSize
		if end > len(raws) {
			end = len(raws)
		}
		batch := raws[start:end]
		lo, hi := batch[0].Index, batch[len(batch)-1].Index
		fns = append(fns, func(ctx domain.Context) error {
			entries, err := f.structureBatch(ctx, batch)
			if err != nil {
				if domain.Classify(err).Retryable() {
					return err
				}
				log.Warn("citation batch structuring degraded to minimal records",
					slog.Int("batch_start", lo), slog.Any("error", err))
				for _, rc := range batch {
					out[rc.Index] = minimalCitation(rc)
				}
				return nil
			}
			matched := make(map[int]bool, len(entries))
			for _, e := range entries {
				// Entries outside this batch's index range belong to another
				// goroutine's slots; drop them.
				if e.Index < lo || e.Index > hi {
					continue
				}
				matched[e.Index] = true
				out[e.Index] = e.toStructured(raws[e.Index])
			}
			for _, rc := range batch {
				if !matched[rc.Index] {
					out[rc.Index] = minimalCitation(rc)
				}
			}
			return nil
		})
	}
	if err := RunParallel(ctx, citationWorkers, fns); err != nil {
		return nil, err
	}
	return out, nil
}

type structuredEntry struct {
	Index      int      `json:"index"`
	Authors    []string `json:"authors,omitempty"`
	Title      string   `json:"title,omitempty"`
	Venue      string   `json:"venue,omitempty"`
	Year       int      `json:"year,omitempty"`
	Volume     string   `json:"volume,omitempty"`
	Issue      string   `json:"issue,omitempty"`
	Pages      string   `json:"pages,omitempty"`
	DOI        string   `json:"doi,omitempty"`
	URL        string   `json:"url,omitempty"`
	Type       string   `json:"type,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

func (e structuredEntry) toStructured(raw RawCitation) StructuredCitation {
	return StructuredCitation{
		Citation: domain.Citation{
			Index:   raw.Index,
			RawText: raw.Text,
			Title:   strings.TrimSpace(e.Title),
			Authors: e.Authors,
			Year:    e.Year,
			Venue:   strings.TrimSpace(e.Venue),
			DOI:     strings.TrimSpace(e.DOI),
			URL:     strings.TrimSpace(e.URL),
		},
		Volume:     e.Volume,
		Issue:      e.Issue,
		Pages:      e.Pages,
		Type:       e.Type,
		Confidence: clamp01(e.Confidence),
	}
}

func minimalCitation(raw RawCitation) StructuredCitation {
	return StructuredCitation{Citation: domain.Citation{Index: raw.Index, RawText: raw.Text}}
}

func (f *CitationFormatter) structureBatch(ctx domain.Context, batch []RawCitation) ([]structuredEntry, error) {
	var b strings.Builder
	b.WriteString("Structure the following citations into bibliographic records. For each entry keep its index unchanged and fill in the fields you can recover; omit fields you cannot.\n")
	b.WriteString(`Respond with a JSON object: {"citations": [{"index": int, "authors": [string], "title": string, "venue": string, "year": int, "volume": string, "issue": string, "pages": string, "doi": string, "url": string, "type": string, "confidence": number}]}.`)
	b.WriteString("\n\n")
	for _, rc := range batch {
		fmt.Fprintf(&b, "[%d] %s\n", rc.Index, textx.CollapseWhitespace(rc.Text))
		if rc.Context != "" {
			fmt.Fprintf(&b, "    context (%s): %s\n", rc.Section, rc.Context)
		}
	}

	var parsed struct {
		Citations []structuredEntry `json:"citations"`
	}
	if err := f.core.CallProviderJSON(ctx, domain.ProviderOpenAI, domain.ChatPrompt{
		System: analysisSystemPrompt,
		User:   b.String(),
	}, &parsed); err != nil {
		return nil, err
	}
	return parsed.Citations, nil
}

// render produces one bibliography per requested style. Style failures
// degrade to an error bibliography, so the join itself never errors.
func (f *CitationFormatter) render(ctx domain.Context, styles []string, cites []StructuredCitation) []Bibliography {
	bibs := make([]Bibliography, len(styles))
	fns := make([]func(domain.Context) error, 0, len(styles))
	for i, style := range styles {
		fns = append(fns, func(ctx domain.Context) error {
			entries, err := f.renderStyle(ctx, style, cites)
			if err != nil {
				bibs[i] = Bibliography{Style: style, Error: err.Error()}
				return nil
			}
			bibs[i] = Bibliography{Style: style, Entries: entries}
			return nil
		})
	}
	_ = RunParallel(ctx, len(styles), fns)
	return bibs
}

func (f *CitationFormatter) renderStyle(ctx domain.Context, style string, cites []StructuredCitation) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Format the following citations as a bibliography in %s citation style, one formatted entry per input, keyed by the input's index.\n", style)
	b.WriteString(`Respond with a JSON object: {"formatted": [{"index": int, "formatted_text": string}]}.`)
	b.WriteString("\n\n")
	enc, err := json.Marshal(cites)
	if err != nil {
		return nil, fmt.Errorf("encode citations: %w", err)
	}
	b.Write(enc)

	var parsed struct {
		Formatted []struct {
			Index         int    `json:"index"`
			FormattedText string `json:"formatted_text"`
		} `json:"formatted"`
	}
	if err := f.core.CallProviderJSON(ctx, domain.ProviderOpenAI, domain.ChatPrompt{
		System: analysisSystemPrompt,
		User:   b.String(),
	}, &parsed); err != nil {
		return nil, err
	}

	lines := make(map[int]string, len(parsed.Formatted))
	for _, e := range parsed.Formatted {
		if text := strings.TrimSpace(e.FormattedText); text != "" && e.Index >= 0 && e.Index < len(cites) {
			lines[e.Index] = text
		}
	}
	entries := make([]string, 0, len(cites))
	for _, c := range cites {
		if line, ok := lines[c.Index]; ok {
			entries = append(entries, line)
		} else {
			entries = append(entries, renderCitation(style, c))
		}
	}
	sortBibliography(entries)
	return entries, nil
}

func sortBibliography(entries []string) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i]) < strings.ToLower(entries[j])
	})
}

func (f *CitationFormatter) persist(ctx domain.Context, paperID string, cites []StructuredCitation) {
	log := observability.LoggerFromContext(ctx)
	content, err := f.repo.FindByPaperID(ctx, paperID)
	if err != nil {
		log.Warn("citation persistence skipped, paper content unavailable",
			slog.String("paper_id", paperID), slog.Any("error", err))
		return
	}
	content.Citations = make([]domain.Citation, 0, len(cites))
	for _, c := range cites {
		content.Citations = append(content.Citations, c.Citation)
	}
	if err := f.repo.ReplaceByPaperID(ctx, content); err != nil {
		log.Error("persist citations failed",
			slog.String("paper_id", paperID), slog.Any("error", err))
	}
}
