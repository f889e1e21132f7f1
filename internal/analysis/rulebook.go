// Package analysis turns extracted document text into categories, tags, a summary and
// findings, driven by a YAML rulebook.
package analysis

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docintel/internal/core/domain"
)

//go:embed rulebook.default.yaml
var defaultRulebook []byte

type ValueType string

const (
	ValueMoney   ValueType = "money"
	ValueDate    ValueType = "date"
	ValuePercent ValueType = "percent"
)

type Rulebook struct {
	Version         int                 `yaml:"version"`
	Categories      []CategoryRule      `yaml:"categories"`
	Tags            []TagRule           `yaml:"tags"`
	Rules           []FindingRule       `yaml:"rules"`
	Inconsistencies []InconsistencyRule `yaml:"inconsistencies"`

	recommendations map[string]domain.Recommendation
	severities      map[string]domain.Severity
}

type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`

	matchers []*regexp.Regexp
}

type TagRule struct {
	Name     string          `yaml:"name"`
	Keywords []string        `yaml:"keywords"`
	MinRisk  domain.Severity `yaml:"min_risk"`

	matchers []*regexp.Regexp
}

type FindingRule struct {
	ID             string              `yaml:"id"`
	Kind           domain.FindingKind  `yaml:"kind"`
	Severity       domain.Severity     `yaml:"severity"`
	Title          string              `yaml:"title"`
	Description    string              `yaml:"description"`
	Impact         string              `yaml:"impact"`
	Patterns       []string            `yaml:"patterns"`
	MinValue       *float64            `yaml:"min_value"`
	Absent         bool                `yaml:"absent"`
	Categories     []string            `yaml:"categories"`
	Recommendation *RecommendationRule `yaml:"recommendation"`

	compiled []*regexp.Regexp
}

type InconsistencyRule struct {
	ID             string              `yaml:"id"`
	Title          string              `yaml:"title"`
	Description    string              `yaml:"description"`
	Severity       domain.Severity     `yaml:"severity"`
	Value          ValueType           `yaml:"value"`
	Labels         []string            `yaml:"labels"`
	Recommendation *RecommendationRule `yaml:"recommendation"`

	labelMatchers []*regexp.Regexp
}

type RecommendationRule struct {
	Title           string          `yaml:"title"`
	Description     string          `yaml:"description"`
	Priority        domain.Priority `yaml:"priority"`
	EstimatedImpact string          `yaml:"estimated_impact"`
	TimeToImplement string          `yaml:"time_to_implement"`
}

// DefaultRulebook returns the rulebook compiled into the binary.
func DefaultRulebook() (*Rulebook, error) {
	return ParseRulebook(defaultRulebook)
}

// LoadRulebook reads a rulebook from path, or the built-in one when path is empty.
func LoadRulebook(path string) (*Rulebook, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRulebook()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}
	return ParseRulebook(raw)
}

func ParseRulebook(raw []byte) (*Rulebook, error) {
	var book Rulebook
	if err := yaml.Unmarshal(raw, &book); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse rulebook", err)
	}
	if err := book.compile(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "compile rulebook", err)
	}
	return &book, nil
}

func (b *Rulebook) compile() error {
	b.recommendations = make(map[string]domain.Recommendation)
	b.severities = make(map[string]domain.Severity)
	seen := make(map[string]struct{})

	for i := range b.Categories {
		c := &b.Categories[i]
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("category #%d has no name", i+1)
		}
		c.matchers = keywordMatchers(c.Keywords)
	}
	for i := range b.Tags {
		t := &b.Tags[i]
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tag #%d has no name", i+1)
		}
		if t.MinRisk != "" {
			if _, ok := domain.ParseSeverity(string(t.MinRisk)); !ok {
				return fmt.Errorf("tag %q: unknown min_risk %q", t.Name, t.MinRisk)
			}
		}
		t.matchers = keywordMatchers(t.Keywords)
	}

	for i := range b.Rules {
		r := &b.Rules[i]
		if err := claimID(seen, r.ID); err != nil {
			return err
		}
		if r.Kind != domain.KindRisk && r.Kind != domain.KindOpportunity {
			return fmt.Errorf("rule %q: kind must be risk or opportunity, got %q", r.ID, r.Kind)
		}
		if _, ok := domain.ParseSeverity(string(r.Severity)); !ok || r.Severity == domain.SeverityNone {
			return fmt.Errorf("rule %q: invalid severity %q", r.ID, r.Severity)
		}
		if len(r.Patterns) == 0 {
			return fmt.Errorf("rule %q: at least one pattern is required", r.ID)
		}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return fmt.Errorf("rule %q: %w", r.ID, err)
			}
			r.compiled = append(r.compiled, re)
		}
		b.severities[r.ID] = r.Severity
		b.addRecommendation(r.ID, r.Recommendation)
	}

	for i := range b.Inconsistencies {
		r := &b.Inconsistencies[i]
		if err := claimID(seen, r.ID); err != nil {
			return err
		}
		switch r.Value {
		case ValueMoney, ValueDate, ValuePercent:
		default:
			return fmt.Errorf("inconsistency %q: unknown value type %q", r.ID, r.Value)
		}
		if _, ok := domain.ParseSeverity(string(r.Severity)); !ok || r.Severity == domain.SeverityNone {
			return fmt.Errorf("inconsistency %q: invalid severity %q", r.ID, r.Severity)
		}
		if len(r.Labels) == 0 {
			return fmt.Errorf("inconsistency %q: at least one label is required", r.ID)
		}
		r.labelMatchers = keywordMatchers(r.Labels)
		b.severities[r.ID] = r.Severity
		b.addRecommendation(r.ID, r.Recommendation)
	}
	return nil
}

func claimID(seen map[string]struct{}, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("rule without id")
	}
	if _, dup := seen[id]; dup {
		return fmt.Errorf("duplicate rule id %q", id)
	}
	seen[id] = struct{}{}
	return nil
}

func (b *Rulebook) addRecommendation(ruleID string, rec *RecommendationRule) {
	if rec == nil {
		return
	}
	priority := rec.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	b.recommendations[ruleID] = domain.Recommendation{
		ID:              ruleID,
		Title:           rec.Title,
		Description:     rec.Description,
		Priority:        priority,
		EstimatedImpact: rec.EstimatedImpact,
		TimeToImplement: rec.TimeToImplement,
	}
}

// Recommendation returns the remediation advice attached to a rule.
func (b *Rulebook) Recommendation(ruleID string) (domain.Recommendation, bool) {
	rec, ok := b.recommendations[ruleID]
	return rec, ok
}

// RuleSeverity returns the configured severity of a rule, or none when unknown.
func (b *Rulebook) RuleSeverity(ruleID string) domain.Severity {
	if s, ok := b.severities[ruleID]; ok {
		return s
	}
	return domain.SeverityNone
}

// CategoryNames lists configured categories in rulebook order.
func (b *Rulebook) CategoryNames() []string {
	out := make([]string, 0, len(b.Categories))
	for _, c := range b.Categories {
		out = append(out, c.Name)
	}
	return out
}

func keywordMatchers(keywords []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		prefix := ""
		if isWordRune(firstRune(kw)) {
			prefix = `\b`
		}
		out = append(out, regexp.MustCompile(`(?i)`+prefix+regexp.QuoteMeta(kw)))
	}
	return out
}

func (r *FindingRule) appliesTo(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}
