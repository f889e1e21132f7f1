package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type FindingRepository struct {
	db *sql.DB
}

func NewFindingRepository(db *sql.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

func (r *FindingRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Finding, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, rule_id, kind, severity, title, description, section, impact, excerpt, created_at
FROM findings
WHERE document_id = $1
ORDER BY position
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Finding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return out, nil
}

// ListBetween returns findings created in [from, to) with their document's display fields.
func (r *FindingRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.FindingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.document_id, f.rule_id, f.kind, f.severity, f.title, f.description, f.section, f.impact, f.excerpt, f.created_at,
	d.filename, d.category
FROM findings f
JOIN documents d ON d.id = f.document_id
WHERE f.created_at >= $1 AND f.created_at < $2
ORDER BY f.created_at, f.document_id, f.position
`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list findings between: %w", err)
	}
	return collectRecords(rows)
}

// ListAlerts returns the latest risks and inconsistencies at or above minSeverity.
func (r *FindingRepository) ListAlerts(ctx context.Context, minSeverity domain.Severity, limit int) ([]domain.FindingRecord, error) {
	levels := make([]string, 0, 4)
	for _, s := range []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		if s.Rank() >= minSeverity.Rank() {
			levels = append(levels, string(s))
		}
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.document_id, f.rule_id, f.kind, f.severity, f.title, f.description, f.section, f.impact, f.excerpt, f.created_at,
	d.filename, d.category
FROM findings f
JOIN documents d ON d.id = f.document_id
WHERE f.kind <> 'opportunity'
	AND f.severity IN (SELECT jsonb_array_elements_text($1::jsonb))
ORDER BY f.created_at DESC, f.position
LIMIT $2
`, jsonArray(levels), limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return collectRecords(rows)
}

// CountAnalyzedBetween counts documents whose last processing run finished in [from, to).
func (r *FindingRepository) CountAnalyzedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM documents
WHERE status = 'ready' AND processed_at >= $1 AND processed_at < $2
`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count analyzed documents: %w", err)
	}
	return n, nil
}

// RelatedDocuments ranks other documents by the number of rule ids they share with documentID.
func (r *FindingRepository) RelatedDocuments(ctx context.Context, documentID string, limit int) ([]domain.RelatedDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT o.document_id, d.filename, jsonb_agg(DISTINCT o.rule_id ORDER BY o.rule_id)
FROM findings f
JOIN findings o ON o.rule_id = f.rule_id AND o.document_id <> f.document_id
JOIN documents d ON d.id = o.document_id
WHERE f.document_id = $1
GROUP BY o.document_id, d.filename
ORDER BY COUNT(DISTINCT o.rule_id) DESC, d.filename
LIMIT $2
`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("related documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RelatedDocument, 0)
	for rows.Next() {
		var rel domain.RelatedDocument
		var rulesRaw []byte
		if err := rows.Scan(&rel.DocumentID, &rel.Filename, &rulesRaw); err != nil {
			return nil, fmt.Errorf("scan related document: %w", err)
		}
		if err := json.Unmarshal(rulesRaw, &rel.SharedRules); err != nil {
			return nil, fmt.Errorf("unmarshal shared rules: %w", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate related documents: %w", err)
	}
	return out, nil
}

func collectRecords(rows *sql.Rows) ([]domain.FindingRecord, error) {
	defer rows.Close()
	out := make([]domain.FindingRecord, 0)
	for rows.Next() {
		var rec domain.FindingRecord
		var kind, severity string
		err := rows.Scan(
			&rec.ID, &rec.DocumentID, &rec.RuleID, &kind, &severity, &rec.Title, &rec.Description,
			&rec.Section, &rec.Impact, &rec.Excerpt, &rec.CreatedAt, &rec.Filename, &rec.Category,
		)
		if err != nil {
			return nil, fmt.Errorf("scan finding record: %w", err)
		}
		rec.Kind = domain.FindingKind(kind)
		rec.Severity = domain.Severity(severity)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finding records: %w", err)
	}
	return out, nil
}

func scanFinding(row rowScanner) (domain.Finding, error) {
	var f domain.Finding
	var kind, severity string
	err := row.Scan(
		&f.ID, &f.DocumentID, &f.RuleID, &kind, &severity, &f.Title, &f.Description,
		&f.Section, &f.Impact, &f.Excerpt, &f.CreatedAt,
	)
	if err != nil {
		return domain.Finding{}, err
	}
	f.Kind = domain.FindingKind(kind)
	f.Severity = domain.Severity(severity)
	return f, nil
}
