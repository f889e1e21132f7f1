package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	patternMinDocuments  = 2
	patternMaxNames      = 5
	topRuleTrends        = 3
	alertMinDocuments    = 3
	alertGrowthPercent   = 40.0
	actionReviewPattern  = "review_pattern"
	defaultInsightsRange = domain.DateRangeQuarter
)

var priorityRank = map[domain.Priority]int{
	domain.PriorityHigh:   0,
	domain.PriorityMedium: 1,
	domain.PriorityLow:    2,
}

type InsightsUseCase struct {
	findings ports.FindingRepository
	rules    ports.RecommendationSource
	now      func() time.Time
}

func NewInsightsUseCase(findings ports.FindingRepository, rules ports.RecommendationSource) *InsightsUseCase {
	return &InsightsUseCase{
		findings: findings,
		rules:    rules,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ruleStats aggregates one rule's findings within a window.
type ruleStats struct {
	ruleID    string
	title     string
	kind      domain.FindingKind
	severity  domain.Severity
	documents map[string]string
}

func (uc *InsightsUseCase) Insights(ctx context.Context, period domain.DateRange) (*domain.Insights, error) {
	if period == "" {
		period = defaultInsightsRange
	}
	if _, ok := domain.ParseDateRange(string(period)); !ok || period == domain.DateRangeAll {
		return nil, domain.WrapError(domain.ErrInvalidInput, "insights", fmt.Errorf("unsupported period %q", period))
	}

	to := uc.now()
	from := period.Since(to)
	prevFrom := from.Add(-to.Sub(from))

	current, err := uc.findings.ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	previous, err := uc.findings.ListBetween(ctx, prevFrom, from)
	if err != nil {
		return nil, fmt.Errorf("list previous findings: %w", err)
	}
	analyzed, err := uc.findings.CountAnalyzedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count analyzed documents: %w", err)
	}

	cur := aggregateRules(current)
	prev := aggregateRules(previous)
	if analyzed == 0 {
		analyzed = distinctDocuments(current)
	}

	out := &domain.Insights{
		Period:            period,
		From:              from,
		To:                to,
		AnalyzedDocuments: analyzed,
	}
	out.Trends = uc.trends(period, current, previous, cur, prev)
	out.Patterns = uc.patterns(cur, analyzed)
	out.Recommendations = uc.recommendations(out.Patterns)
	out.Alerts = uc.alerts(cur, prev)
	return out, nil
}

func (uc *InsightsUseCase) trends(
	period domain.DateRange,
	current, previous []domain.FindingRecord,
	cur, prev map[string]*ruleStats,
) []domain.Trend {
	out := make([]domain.Trend, 0)

	kinds := []struct {
		kind  domain.FindingKind
		label string
	}{
		{domain.KindRisk, "Risks"},
		{domain.KindOpportunity, "Opportunities"},
		{domain.KindInconsistency, "Inconsistencies"},
	}
	for _, k := range kinds {
		now, before := countKind(current, k.kind), countKind(previous, k.kind)
		if now == 0 && before == 0 {
			continue
		}
		change := percentChange(now, before)
		out = append(out, domain.Trend{
			ID:          "kind:" + string(k.kind),
			Title:       k.label,
			Description: fmt.Sprintf("%d detected this period vs %d in the previous period", now, before),
			Impact:      trendImpact(k.kind, change),
			Change:      change,
			Period:      string(period),
		})
	}

	for _, s := range topRules(cur, topRuleTrends) {
		before := 0
		if p, ok := prev[s.ruleID]; ok {
			before = len(p.documents)
		}
		change := percentChange(len(s.documents), before)
		out = append(out, domain.Trend{
			ID:          "rule:" + s.ruleID,
			Title:       s.title,
			Description: fmt.Sprintf("Found in %d documents vs %d in the previous period", len(s.documents), before),
			Impact:      trendImpact(s.kind, change),
			Change:      change,
			Period:      string(period),
		})
	}
	return out
}

func (uc *InsightsUseCase) patterns(cur map[string]*ruleStats, analyzed int) []domain.Pattern {
	stats := make([]*ruleStats, 0, len(cur))
	for _, s := range cur {
		if len(s.documents) >= patternMinDocuments {
			stats = append(stats, s)
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		if len(stats[i].documents) != len(stats[j].documents) {
			return len(stats[i].documents) > len(stats[j].documents)
		}
		if stats[i].severity.Rank() != stats[j].severity.Rank() {
			return stats[i].severity.Rank() > stats[j].severity.Rank()
		}
		return stats[i].ruleID < stats[j].ruleID
	})

	out := make([]domain.Pattern, 0, len(stats))
	for _, s := range stats {
		frequency := 0.0
		if analyzed > 0 {
			frequency = math.Min(100, round1(float64(len(s.documents))*100/float64(analyzed)))
		}
		out = append(out, domain.Pattern{
			ID:          s.ruleID,
			Title:       s.title,
			Description: fmt.Sprintf("Detected in %d of %d analyzed documents", len(s.documents), analyzed),
			Frequency:   frequency,
			Documents:   documentNames(s.documents, patternMaxNames),
			Severity:    uc.severityOf(s),
		})
	}
	return out
}

func (uc *InsightsUseCase) recommendations(patterns []domain.Pattern) []domain.Recommendation {
	out := make([]domain.Recommendation, 0)
	if uc.rules == nil {
		return out
	}
	for _, p := range patterns {
		if rec, ok := uc.rules.Recommendation(p.ID); ok {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank[out[i].Priority] < priorityRank[out[j].Priority]
	})
	return out
}

func (uc *InsightsUseCase) alerts(cur, prev map[string]*ruleStats) []domain.Alert {
	type candidate struct {
		stats  *ruleStats
		growth float64
	}
	candidates := make([]candidate, 0)
	for id, s := range cur {
		if s.kind == domain.KindOpportunity {
			continue
		}
		before := 0
		if p, ok := prev[id]; ok {
			before = len(p.documents)
		}
		growth := percentChange(len(s.documents), before)
		// A rule absent from the previous window has no growth to alert on; it alerts only
		// once it reaches alertMinDocuments.
		grew := before > 0 && growth >= alertGrowthPercent
		if len(s.documents) >= alertMinDocuments || grew {
			candidates = append(candidates, candidate{stats: s, growth: growth})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := uc.severityOf(candidates[i].stats), uc.severityOf(candidates[j].stats)
		if si.Rank() != sj.Rank() {
			return si.Rank() > sj.Rank()
		}
		return candidates[i].stats.ruleID < candidates[j].stats.ruleID
	})

	out := make([]domain.Alert, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.Alert{
			ID:       "rule:" + c.stats.ruleID,
			Message:  fmt.Sprintf("%s found in %d documents (%+.0f%% vs previous period)", c.stats.title, len(c.stats.documents), c.growth),
			Severity: uc.severityOf(c.stats),
			Action:   actionReviewPattern,
		})
	}
	return out
}

func (uc *InsightsUseCase) severityOf(s *ruleStats) domain.Severity {
	if uc.rules != nil {
		if sev := uc.rules.RuleSeverity(s.ruleID); sev != domain.SeverityNone {
			return sev
		}
	}
	return s.severity
}

func aggregateRules(records []domain.FindingRecord) map[string]*ruleStats {
	out := make(map[string]*ruleStats)
	for _, r := range records {
		s, ok := out[r.RuleID]
		if !ok {
			s = &ruleStats{
				ruleID:    r.RuleID,
				title:     r.Title,
				kind:      r.Kind,
				severity:  r.Severity,
				documents: make(map[string]string),
			}
			out[r.RuleID] = s
		}
		s.documents[r.DocumentID] = r.Filename
	}
	return out
}

func topRules(stats map[string]*ruleStats, n int) []*ruleStats {
	out := make([]*ruleStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].documents) != len(out[j].documents) {
			return len(out[i].documents) > len(out[j].documents)
		}
		return out[i].ruleID < out[j].ruleID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func countKind(records []domain.FindingRecord, kind domain.FindingKind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func distinctDocuments(records []domain.FindingRecord) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.DocumentID] = struct{}{}
	}
	return len(seen)
}

func documentNames(docs map[string]string, limit int) []string {
	names := make([]string, 0, len(docs))
	for _, name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}

// percentChange is the growth from before to now; growth from zero counts as 100%.
func percentChange(now, before int) float64 {
	if before == 0 {
		if now > 0 {
			return 100
		}
		return 0
	}
	return round1(float64(now-before) * 100 / float64(before))
}

func trendImpact(kind domain.FindingKind, change float64) domain.TrendImpact {
	switch {
	case change == 0:
		return domain.ImpactNeutral
	case (change > 0) == (kind == domain.KindOpportunity):
		return domain.ImpactPositive
	default:
		return domain.ImpactNegative
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
