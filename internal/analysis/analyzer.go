package analysis

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const (
	defaultSummaryChars = 480
	excerptRadius       = 80
	labelWindow         = 100
)

type Analyzer struct {
	book         *Rulebook
	summaryChars int
}

func NewAnalyzer(book *Rulebook) *Analyzer {
	return &Analyzer{book: book, summaryChars: defaultSummaryChars}
}

func (a *Analyzer) Rulebook() *Rulebook {
	return a.book
}

// Analyze classifies the document, evaluates every rule against the text and derives
// tags, risk level and priority. Findings come back without ids or timestamps.
func (a *Analyzer) Analyze(doc *domain.Document, text string) domain.Analysis {
	filename := ""
	if doc != nil {
		filename = strings.TrimSuffix(filepath.Base(doc.Filename), filepath.Ext(doc.Filename))
		filename = strings.NewReplacer("_", " ", "-", " ").Replace(filename)
	}
	sections := newSectionIndex(text)

	category := a.classify(filename, text)
	findings := make([]domain.Finding, 0)
	for i := range a.book.Rules {
		if f, ok := a.evalRule(&a.book.Rules[i], category, text, sections); ok {
			findings = append(findings, f)
		}
	}
	for i := range a.book.Inconsistencies {
		if f, ok := a.evalInconsistency(&a.book.Inconsistencies[i], text, sections); ok {
			findings = append(findings, f)
		}
	}
	sortFindings(findings)

	risk := domain.MaxSeverity(findings)
	return domain.Analysis{
		Category:  category,
		Tags:      a.tags(text, risk),
		Summary:   summarize(text, a.summaryChars),
		RiskLevel: risk,
		Priority:  domain.PriorityFor(risk),
		Findings:  findings,
	}
}

func (a *Analyzer) classify(filename, text string) string {
	best, bestScore := domain.CategoryOther, 0
	for _, c := range a.book.Categories {
		score := 0
		for _, m := range c.matchers {
			score += len(m.FindAllStringIndex(text, -1))
			score += 2 * len(m.FindAllStringIndex(filename, -1))
		}
		if score > bestScore {
			best, bestScore = c.Name, score
		}
	}
	return best
}

func (a *Analyzer) tags(text string, risk domain.Severity) []string {
	out := make([]string, 0)
	for _, t := range a.book.Tags {
		if t.MinRisk != "" && risk.Rank() >= t.MinRisk.Rank() {
			out = append(out, t.Name)
			continue
		}
		for _, m := range t.matchers {
			if m.MatchString(text) {
				out = append(out, t.Name)
				break
			}
		}
	}
	return out
}

func (a *Analyzer) evalRule(rule *FindingRule, category, text string, sections *sectionIndex) (domain.Finding, bool) {
	if !rule.appliesTo(category) {
		return domain.Finding{}, false
	}

	if rule.Absent {
		for _, re := range rule.compiled {
			if re.MatchString(text) {
				return domain.Finding{}, false
			}
		}
		return a.finding(rule, "", sectionGeneral, ""), true
	}

	for _, re := range rule.compiled {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			value, hasValue := matchValue(text, loc)
			if rule.MinValue != nil && (!hasValue || value <= *rule.MinValue) {
				continue
			}
			formatted := ""
			if hasValue {
				formatted = strconv.FormatFloat(value, 'f', -1, 64)
			}
			return a.finding(rule, formatted, sections.at(loc[0]), excerpt(text, loc[0], loc[1])), true
		}
	}
	return domain.Finding{}, false
}

func (a *Analyzer) finding(rule *FindingRule, value, section, snippet string) domain.Finding {
	return domain.Finding{
		RuleID:      rule.ID,
		Kind:        rule.Kind,
		Severity:    rule.Severity,
		Title:       rule.Title,
		Description: strings.ReplaceAll(rule.Description, "{value}", value),
		Section:     section,
		Impact:      rule.Impact,
		Excerpt:     snippet,
	}
}

type labelledValue struct {
	raw   string
	start int
	end   int
}

func (a *Analyzer) evalInconsistency(rule *InconsistencyRule, text string, sections *sectionIndex) (domain.Finding, bool) {
	pattern := valuePattern(rule.Value)

	// Values are compared per label; different labels may legitimately carry different amounts.
	for _, label := range rule.labelMatchers {
		distinct := make(map[string]labelledValue)
		order := make([]string, 0)
		for _, loc := range label.FindAllStringIndex(text, -1) {
			windowEnd := min(len(text), loc[1]+labelWindow)
			window := text[loc[1]:windowEnd]
			vloc := pattern.FindStringIndex(window)
			if vloc == nil {
				continue
			}
			raw := strings.TrimSpace(window[vloc[0]:vloc[1]])
			norm := normalizeValue(rule.Value, raw)
			if norm == "" {
				continue
			}
			if _, ok := distinct[norm]; ok {
				continue
			}
			distinct[norm] = labelledValue{raw: raw, start: loc[0], end: loc[1] + vloc[1]}
			order = append(order, norm)
		}
		if len(order) < 2 {
			continue
		}

		raws := make([]string, 0, len(order))
		for _, norm := range order {
			raws = append(raws, distinct[norm].raw)
		}
		first := distinct[order[0]]
		return domain.Finding{
			RuleID:      rule.ID,
			Kind:        domain.KindInconsistency,
			Severity:    rule.Severity,
			Title:       rule.Title,
			Description: strings.ReplaceAll(rule.Description, "{values}", strings.Join(raws, " vs ")),
			Section:     sections.at(first.start),
			Excerpt:     excerpt(text, first.start, first.end),
		}, true
	}
	return domain.Finding{}, false
}

// matchValue reads the numeric threshold value from the first capture group.
func matchValue(text string, loc []int) (float64, bool) {
	if len(loc) < 4 || loc[2] < 0 {
		return 0, false
	}
	return parseNumber(text[loc[2]:loc[3]])
}

var kindOrder = map[domain.FindingKind]int{
	domain.KindRisk:          0,
	domain.KindOpportunity:   1,
	domain.KindInconsistency: 2,
}

func sortFindings(findings []domain.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ki, kj := kindOrder[findings[i].Kind], kindOrder[findings[j].Kind]
		if ki != kj {
			return ki < kj
		}
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})
}
