package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const headlineOptions = "MaxFragments=1, MaxWords=35, MinWords=15, StartSel=<mark>, StopSel=</mark>"

// ChunkIndex is the full-text index over document chunks, using the 'simple' text search
// configuration so mixed-language corpora are matched without stemming.
type ChunkIndex struct {
	db *sql.DB
}

func NewChunkIndex(db *sql.DB) *ChunkIndex {
	return &ChunkIndex{db: db}
}

// IndexChunks replaces every chunk of the document.
func (i *ChunkIndex) IndexChunks(ctx context.Context, documentID string, chunks []string) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for idx, content := range chunks {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunks (document_id, chunk_index, content)
VALUES ($1, $2, $3)
`, documentID, idx, content); err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

func (i *ChunkIndex) SearchChunks(ctx context.Context, text string, filter domain.SearchFilter, limit int) ([]domain.ChunkHit, error) {
	tsQuery := orQuery(text)
	if tsQuery == "" || limit <= 0 {
		return []domain.ChunkHit{}, nil
	}

	var c conditions
	q := c.arg(tsQuery)
	c.add("c.tsv @@ to_tsquery('simple', " + q + ")")
	c.add("d.status = 'ready'")
	addSearchFilter(&c, filter)

	query := `
SELECT d.id, d.filename, d.category, d.tags, d.risk_level, d.file_type, d.size_bytes, d.created_at,
	c.chunk_index, c.content,
	ts_headline('simple', c.content, to_tsquery('simple', ` + q + `), '` + headlineOptions + `'),
	ts_rank_cd(c.tsv, to_tsquery('simple', ` + q + `)) AS score
FROM chunks c
JOIN documents d ON d.id = c.document_id
` + c.where() + `ORDER BY score DESC, d.created_at DESC, c.chunk_index
LIMIT ` + c.arg(limit)

	rows, err := i.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChunkHit, 0)
	for rows.Next() {
		var hit domain.ChunkHit
		var tagsRaw []byte
		var risk string
		err := rows.Scan(
			&hit.DocumentID, &hit.Filename, &hit.Category, &tagsRaw, &risk, &hit.FileType, &hit.SizeBytes,
			&hit.CreatedAt, &hit.ChunkIndex, &hit.Text, &hit.Snippet, &hit.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		if hit.Tags, err = decodeTags(tagsRaw); err != nil {
			return nil, err
		}
		hit.RiskLevel = domain.Severity(risk)
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk hits: %w", err)
	}
	return out, nil
}

// ListDocuments browses ready documents newest first, with the summary standing in for chunk text.
func (i *ChunkIndex) ListDocuments(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.ChunkHit, int, error) {
	var c conditions
	c.add("d.status = 'ready'")
	addSearchFilter(&c, filter)
	where := c.where()
	countArgs := append([]any(nil), c.args...)

	query := `
SELECT d.id, d.filename, d.category, d.tags, d.risk_level, d.file_type, d.size_bytes, d.created_at, d.summary,
	COUNT(*) OVER() AS total
FROM documents d
` + where + `ORDER BY d.created_at DESC, d.id
LIMIT ` + c.arg(limit) + ` OFFSET ` + c.arg(offset)

	rows, err := i.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("browse documents: %w", err)
	}
	defer rows.Close()

	total := 0
	out := make([]domain.ChunkHit, 0)
	for rows.Next() {
		var hit domain.ChunkHit
		var tagsRaw []byte
		var risk string
		err := rows.Scan(
			&hit.DocumentID, &hit.Filename, &hit.Category, &tagsRaw, &risk, &hit.FileType, &hit.SizeBytes,
			&hit.CreatedAt, &hit.Text, &total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document hit: %w", err)
		}
		if hit.Tags, err = decodeTags(tagsRaw); err != nil {
			return nil, 0, err
		}
		hit.RiskLevel = domain.Severity(risk)
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate document hits: %w", err)
	}

	// Past the last page the window function yields no row to carry the total.
	if len(out) == 0 && offset > 0 {
		if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents d\n"+where, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count documents: %w", err)
		}
	}
	return out, total, nil
}

// Facets lists the filter values present across ready documents.
func (i *ChunkIndex) Facets(ctx context.Context) (*domain.SearchFacets, error) {
	categories, err := i.distinct(ctx, `SELECT DISTINCT category FROM documents WHERE status = 'ready' AND category <> '' ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("category facets: %w", err)
	}
	tags, err := i.distinct(ctx, `SELECT DISTINCT jsonb_array_elements_text(tags) FROM documents WHERE status = 'ready' ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("tag facets: %w", err)
	}
	risks, err := i.distinct(ctx, `SELECT DISTINCT risk_level FROM documents WHERE status = 'ready' ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("risk facets: %w", err)
	}
	fileTypes, err := i.distinct(ctx, `SELECT DISTINCT file_type FROM documents WHERE status = 'ready' AND file_type <> '' ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("file type facets: %w", err)
	}
	sort.SliceStable(risks, func(a, b int) bool {
		return domain.Severity(risks[a]).Rank() > domain.Severity(risks[b]).Rank()
	})
	return &domain.SearchFacets{
		Categories: categories,
		Tags:       tags,
		RiskLevels: risks,
		FileTypes:  fileTypes,
	}, nil
}

func (i *ChunkIndex) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func addSearchFilter(c *conditions, filter domain.SearchFilter) {
	c.inList("d.category", filter.Categories)
	if len(filter.Tags) > 0 {
		c.add("d.tags ?| ARRAY(SELECT jsonb_array_elements_text(" + c.arg(jsonArray(filter.Tags)) + "::jsonb))")
	}
	c.inList("d.risk_level", filter.RiskLevels)
	c.inList("d.file_type", filter.FileTypes)
	if !filter.CreatedAfter.IsZero() {
		c.add("d.created_at >= " + c.arg(filter.CreatedAfter.UTC()))
	}
}

// orQuery turns free text into a to_tsquery expression matching any of its words.
// Only letters and digits survive, so the result is always a valid tsquery.
func orQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return strings.Join(terms, " | ")
}
