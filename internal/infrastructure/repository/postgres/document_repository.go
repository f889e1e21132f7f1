package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const documentColumns = `id, filename, mime_type, file_type, size_bytes, pages, storage_path, category, tags, summary,
	risk_level, priority, status, review_status, stage, progress, error_message, created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.FileType, doc.SizeBytes, doc.Pages, doc.StoragePath,
		doc.Category, jsonArray(doc.Tags), doc.Summary, string(doc.RiskLevel), string(doc.Priority),
		string(doc.Status), string(doc.ReviewStatus), string(doc.Stage), doc.Progress, doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// GetMany returns the documents that exist among ids, in the order requested.
func (r *DocumentRepository) GetMany(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id IN (SELECT jsonb_array_elements_text($1::jsonb))
`, jsonArray(ids))
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]domain.Document, 0, len(docs))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentListFilter) ([]domain.Document, error) {
	var c conditions
	if filter.Status != "" {
		c.add("status = " + c.arg(string(filter.Status)))
	}
	if filter.ReviewStatus != "" {
		c.add("review_status = " + c.arg(string(filter.ReviewStatus)))
	}
	if filter.RiskLevel != "" {
		c.add("risk_level = " + c.arg(string(filter.RiskLevel)))
	}
	if filter.Category != "" {
		c.add("category = " + c.arg(filter.Category))
	}
	query := "SELECT " + documentColumns + "\nFROM documents\n" + c.where() +
		"ORDER BY created_at DESC, id\n" +
		"LIMIT " + c.arg(filter.Limit) + " OFFSET " + c.arg(filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

// UpdateStatus moves a document through its lifecycle. Ready documents are pinned to the
// done stage at 100% and stamped with processed_at; documents returned to uploaded restart
// from zero. Review changes do not touch processed_at.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2,
	error_message = $3,
	updated_at = $4,
	stage = CASE WHEN $2 = 'ready' THEN 'done' WHEN $2 = 'uploaded' THEN '' ELSE stage END,
	progress = CASE WHEN $2 = 'ready' THEN 100 WHEN $2 = 'uploaded' THEN 0 ELSE progress END,
	processed_at = CASE WHEN $2 = 'ready' THEN $4 ELSE processed_at END
WHERE id = $1
`, id, string(status), errMessage, r.now())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(result, "update document status", id)
}

func (r *DocumentRepository) UpdateProgress(ctx context.Context, id string, stage domain.Stage, progress int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET stage = $2, progress = $3, updated_at = $4
WHERE id = $1
`, id, string(stage), progress, r.now())
	if err != nil {
		return fmt.Errorf("update document progress: %w", err)
	}
	return requireAffected(result, "update document progress", id)
}

func (r *DocumentRepository) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET review_status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), r.now())
	if err != nil {
		return fmt.Errorf("set review status: %w", err)
	}
	return requireAffected(result, "set review status", id)
}

// SaveAnalysis stores classification fields and replaces the document's findings atomically.
func (r *DocumentRepository) SaveAnalysis(ctx context.Context, id string, pages int, analysis domain.Analysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analysis tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE documents
SET pages = $2, category = $3, tags = $4, summary = $5, risk_level = $6, priority = $7, updated_at = $8
WHERE id = $1
`, id, pages, analysis.Category, jsonArray(analysis.Tags), analysis.Summary,
		string(analysis.RiskLevel), string(analysis.Priority), r.now())
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	if err := requireAffected(result, "save analysis", id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("clear findings: %w", err)
	}
	for i, f := range analysis.Findings {
		_, err := tx.ExecContext(ctx, `
INSERT INTO findings (id, document_id, position, rule_id, kind, severity, title, description, section, impact, excerpt, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, f.ID, id, i, f.RuleID, string(f.Kind), string(f.Severity), f.Title, f.Description,
			f.Section, f.Impact, f.Excerpt, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert finding %s: %w", f.RuleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit analysis tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Stats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE review_status = 'pending'),
	COUNT(*) FILTER (WHERE risk_level = 'critical'),
	COUNT(*) FILTER (WHERE review_status <> 'pending')
FROM documents
`).Scan(&stats.Total, &stats.Pending, &stats.Critical, &stats.Processed)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("document stats: %w", err)
	}
	return stats, nil
}

func requireAffected(result sql.Result, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var tagsRaw []byte
	var riskLevel, priority, status, reviewStatus, stage string
	err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&doc.MimeType,
		&doc.FileType,
		&doc.SizeBytes,
		&doc.Pages,
		&doc.StoragePath,
		&doc.Category,
		&tagsRaw,
		&doc.Summary,
		&riskLevel,
		&priority,
		&status,
		&reviewStatus,
		&stage,
		&doc.Progress,
		&doc.Error,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	tags, err := decodeTags(tagsRaw)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Tags = tags
	doc.RiskLevel = domain.Severity(riskLevel)
	doc.Priority = domain.Priority(priority)
	doc.Status = domain.DocumentStatus(status)
	doc.ReviewStatus = domain.ReviewStatus(reviewStatus)
	doc.Stage = domain.Stage(stage)
	return doc, nil
}
