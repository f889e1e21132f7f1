package domain

import (
	"strings"
	"time"
)

type FindingKind string

const (
	KindRisk          FindingKind = "risk"
	KindOpportunity   FindingKind = "opportunity"
	KindInconsistency FindingKind = "inconsistency"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities; unknown values rank with none.
func (s Severity) Rank() int {
	return severityRank[s]
}

func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := severityRank[s]; !ok {
		return "", false
	}
	return s, true
}

// MaxSeverity returns the highest risk severity among findings, or SeverityNone.
func MaxSeverity(findings []Finding) Severity {
	out := SeverityNone
	for _, f := range findings {
		if f.Kind != KindRisk {
			continue
		}
		if f.Severity.Rank() > out.Rank() {
			out = f.Severity
		}
	}
	return out
}

// Finding is a categorized observation about a document: a risk, an opportunity,
// or an inconsistency between two statements of the same fact.
type Finding struct {
	ID          string      `json:"id"`
	DocumentID  string      `json:"document_id"`
	RuleID      string      `json:"rule_id"`
	Kind        FindingKind `json:"kind"`
	Severity    Severity    `json:"severity"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Section     string      `json:"section,omitempty"`
	Impact      string      `json:"impact,omitempty"`
	Excerpt     string      `json:"excerpt,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// FindingRecord is a finding joined with the owning document's display fields.
type FindingRecord struct {
	Finding
	Filename string `json:"filename"`
	Category string `json:"category"`
}

// GroupFindings splits findings by kind preserving order.
func GroupFindings(findings []Finding) (risks, opportunities, inconsistencies []Finding) {
	risks = []Finding{}
	opportunities = []Finding{}
	inconsistencies = []Finding{}
	for _, f := range findings {
		switch f.Kind {
		case KindRisk:
			risks = append(risks, f)
		case KindOpportunity:
			opportunities = append(opportunities, f)
		case KindInconsistency:
			inconsistencies = append(inconsistencies, f)
		}
	}
	return risks, opportunities, inconsistencies
}
