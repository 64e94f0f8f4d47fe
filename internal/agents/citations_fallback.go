package agents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/fairyhunter13/ai-paper-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-paper-analyzer/pkg/textx"
)

// Field-recovery patterns for the rule-based path.
var (
	yearRe        = regexp.MustCompile(`\b(?:19|20)\d{2}[a-z]?\b`)
	doiRe         = regexp.MustCompile(`\b10\.\d{4,9}/[^\s"<>]+`)
	urlRe         = regexp.MustCompile(`https?://[^\s"<>]+`)
	quotedTitleRe = regexp.MustCompile(`["“]([^"”]{4,})["”]`)
)

const maxParsedAuthors = 6

// RuleBasedCitationFormatter renders bibliographies without AI: regex field
// recovery over the raw citation text and deterministic per-style templates.
// Registered as the citation formatter's local fallback.
type RuleBasedCitationFormatter struct {
	repo domain.PaperContentRepository
}

// NewRuleBasedCitationFormatter builds the fallback formatter.
func NewRuleBasedCitationFormatter(repo domain.PaperContentRepository) *RuleBasedCitationFormatter {
	return &RuleBasedCitationFormatter{repo: repo}
}

// Kind implements Agent.
func (f *RuleBasedCitationFormatter) Kind() domain.AgentKind { return domain.KindCitationFormatter }

// Estimate implements Agent.
func (f *RuleBasedCitationFormatter) Estimate(domain.AgentTask) time.Duration {
	return 2 * time.Second
}

// CanHandle implements Agent.
func (f *RuleBasedCitationFormatter) CanHandle(task domain.AgentTask) bool {
	if task.Kind != domain.KindCitationFormatter {
		return false
	}
	_, err := citationInput(task.Input)
	return err == nil
}

// Execute implements Agent. The degraded records are not persisted; they
// would overwrite richer stored citations with regex guesses.
func (f *RuleBasedCitationFormatter) Execute(ctx domain.Context, task domain.AgentTask) (domain.Tree, error) {
	in, err := citationInput(task.Input)
	if err != nil {
		return nil, err
	}
	raws, err := loadRawCitations(ctx, f.repo, in)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		res := citationResult(in, nil, nil)
		res["method"] = "rule_based"
		return res, nil
	}

	structured := make([]StructuredCitation, len(raws))
	for i, rc := range raws {
		structured[i] = ParseRawCitation(rc)
	}
	bibs := make([]Bibliography, 0, len(in.Styles))
	for _, style := range in.Styles {
		entries := make([]string, 0, len(structured))
		for _, c := range structured {
			entries = append(entries, renderCitation(style, c))
		}
		sortBibliography(entries)
		bibs = append(bibs, Bibliography{Style: style, Entries: entries})
	}

	res := citationResult(in, structured, bibs)
	res["method"] = "rule_based"
	return res, nil
}

// ParseRawCitation recovers bibliographic fields from one raw citation using
// regular expressions only.
func ParseRawCitation(raw RawCitation) StructuredCitation {
	text := textx.CollapseWhitespace(raw.Text)
	c := StructuredCitation{Citation: domain.Citation{Index: raw.Index, RawText: raw.Text}}

	if m := yearRe.FindString(text); m != "" {
		year, err := strconv.Atoi(strings.TrimRight(m, "abcdefghijklmnopqrstuvwxyz"))
		if err == nil {
			c.Year = year
		}
	}
	if m := doiRe.FindString(text); m != "" {
		c.DOI = strings.TrimRight(m, ".,;")
	}
	if m := urlRe.FindString(text); m != "" && !strings.Contains(m, "doi.org") {
		c.URL = strings.TrimRight(m, ".,;)")
	}
	if m := quotedTitleRe.FindStringSubmatch(text); m != nil {
		c.Title = strings.TrimSpace(strings.TrimSuffix(m[1], "."))
	}
	c.Authors = leadingAuthors(text)
	if c.Title == "" {
		c.Title = titleFromSegments(text)
	}
	c.Venue = venueFromSegments(text)

	recovered := 0
	for _, ok := range []bool{c.Year > 0, c.DOI != "", c.Title != "", len(c.Authors) > 0, c.Venue != ""} {
		if ok {
			recovered++
		}
	}
	c.Confidence = float64(recovered) / 5
	return c
}

// leadingAuthors reads the author list off the head of a reference string.
func leadingAuthors(text string) []string {
	head := text
	if loc := yearRe.FindStringIndex(head); loc != nil {
		head = head[:loc[0]]
	}
	if loc := quotedTitleRe.FindStringIndex(head); loc != nil {
		head = head[:loc[0]]
	}
	if i := strings.Index(head, " et al"); i > 0 {
		head = head[:i]
	}
	head = strings.Trim(head, " .,;:([")
	if head == "" {
		return nil
	}

	var authors []string
	for _, p := range strings.FieldsFunc(head, func(r rune) bool { return r == ',' || r == ';' }) {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "& ")
		p = strings.TrimPrefix(p, "and ")
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case isInitials(p) && len(authors) > 0:
			authors[len(authors)-1] += ", " + p
		case startsUpper(p) && len(strings.Fields(p)) <= 4:
			authors = append(authors, p)
		default:
			// A segment that is neither a name nor initials means we have
			// run past the author list.
			return capAuthors(authors)
		}
	}
	return capAuthors(authors)
}

func capAuthors(authors []string) []string {
	if len(authors) > maxParsedAuthors {
		return authors[:maxParsedAuthors]
	}
	return authors
}

func isInitials(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 3 {
		return false
	}
	for _, f := range fields {
		f = strings.TrimSuffix(f, ".")
		if utf8.RuneCountInString(f) > 2 || !startsUpper(f) {
			return false
		}
	}
	return true
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

// titleFromSegments guesses the title as the longest sentence-ish segment
// after the author head.
func titleFromSegments(text string) string {
	segs := strings.Split(text, ". ")
	if len(segs) < 2 {
		return ""
	}
	best := ""
	for _, s := range segs[1:] {
		s = strings.TrimSpace(s)
		if yearRe.MatchString(s) && len(strings.Fields(s)) <= 4 {
			continue
		}
		if len(s) > len(best) {
			best = s
		}
	}
	if utf8.RuneCountInString(best) < 8 {
		return ""
	}
	return strings.TrimSuffix(best, ".")
}

// venueFromSegments guesses the venue as a short segment carrying the year.
func venueFromSegments(text string) string {
	for _, s := range strings.Split(text, ". ") {
		s = strings.TrimSpace(s)
		if s == "" || !yearRe.MatchString(s) {
			continue
		}
		v := strings.Trim(yearRe.ReplaceAllString(s, ""), " .,;:()")
		if v != "" && len(strings.Fields(v)) <= 6 && startsUpper(v) {
			return v
		}
	}
	return ""
}

// renderCitation renders one citation deterministically. Used for the whole
// rule-based bibliography and to fill entries the AI formatter left out.
func renderCitation(style string, c StructuredCitation) string {
	authors := joinAuthors(c.Authors)
	title := strings.TrimSpace(c.Title)
	if authors == "" && title == "" {
		return textx.CollapseWhitespace(c.RawText)
	}
	if title == "" {
		title = textx.CollapseWhitespace(c.RawText)
	}

	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	link := ""
	if c.DOI != "" {
		link = "https://doi.org/" + c.DOI
	} else if c.URL != "" {
		link = c.URL
	}

	switch style {
	case StyleMLA:
		add(withSuffix(authors, "."))
		add(`"` + title + `."`)
		if c.Venue != "" && c.Year > 0 {
			add(fmt.Sprintf("%s, %d.", c.Venue, c.Year))
		} else if c.Venue != "" {
			add(c.Venue + ".")
		} else if c.Year > 0 {
			add(fmt.Sprintf("%d.", c.Year))
		}
		add(link)
	case StyleChicago:
		add(withSuffix(authors, "."))
		add(`"` + title + `."`)
		if c.Venue != "" && c.Year > 0 {
			add(fmt.Sprintf("%s (%d).", c.Venue, c.Year))
		} else if c.Venue != "" {
			add(c.Venue + ".")
		} else if c.Year > 0 {
			add(fmt.Sprintf("(%d).", c.Year))
		}
		add(link)
	case StyleIEEE:
		add(withSuffix(authors, ","))
		add(`"` + title + `,"`)
		add(withSuffix(c.Venue, ","))
		if c.Year > 0 {
			add(fmt.Sprintf("%d.", c.Year))
		}
		add(link)
	case StyleHarvard:
		if authors != "" && c.Year > 0 {
			add(fmt.Sprintf("%s, %d.", authors, c.Year))
		} else {
			add(withSuffix(authors, "."))
		}
		add(title + ".")
		add(withSuffix(c.Venue, "."))
		add(link)
	default: // APA
		if authors != "" && c.Year > 0 {
			add(fmt.Sprintf("%s (%d).", authors, c.Year))
		} else if authors != "" {
			add(authors + ".")
		} else if c.Year > 0 {
			add(fmt.Sprintf("(%d).", c.Year))
		}
		add(title + ".")
		add(withSuffix(c.Venue, "."))
		add(link)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func withSuffix(s, suffix string) string {
	if s == "" {
		return ""
	}
	return s + suffix
}

func joinAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return authors[0]
	}
	return strings.Join(authors[:len(authors)-1], ", ") + ", & " + authors[len(authors)-1]
}
