// Package neo4j mirrors documents and their findings into a property graph so documents
// sharing rules can be found by traversal.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/resilience"
)

var constraints = []string{
	`CREATE CONSTRAINT document_id IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
	`CREATE CONSTRAINT rule_id IF NOT EXISTS FOR (r:Rule) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT category_name IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE`,
}

const projectCypher = `
MERGE (d:Document {id: $id})
SET d.filename = $filename, d.risk_level = $risk_level, d.updated_at = datetime()
WITH d
OPTIONAL MATCH (d)-[old:HAS_FINDING|IN_CATEGORY]->()
DELETE old
WITH DISTINCT d
MERGE (c:Category {name: $category})
MERGE (d)-[:IN_CATEGORY]->(c)
WITH d
UNWIND $findings AS f
MERGE (r:Rule {id: f.rule_id})
SET r.kind = f.kind, r.title = f.title
MERGE (d)-[h:HAS_FINDING]->(r)
SET h.severity = f.severity, h.section = f.section
`

const relatedCypher = `
MATCH (d:Document {id: $id})-[:HAS_FINDING]->(r:Rule)<-[:HAS_FINDING]-(o:Document)
WHERE o.id <> d.id
WITH o, collect(DISTINCT r.id) AS rules
RETURN o.id AS id, o.filename AS filename, rules
ORDER BY size(rules) DESC, filename
LIMIT $limit
`

// runner executes one Cypher statement and returns its eagerly collected records.
type runner func(ctx context.Context, cypher string, params map[string]any, write bool) (*neo4j.EagerResult, error)

type Options struct {
	Database           string
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

type Projector struct {
	driver   neo4j.DriverWithContext
	run      runner
	executor *resilience.Executor
	logger   *slog.Logger

	ensureMu sync.Mutex
	ensured  bool
}

func New(ctx context.Context, uri, username, password string, options Options) (*Projector, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	database := strings.TrimSpace(options.Database)
	run := func(ctx context.Context, cypher string, params map[string]any, write bool) (*neo4j.EagerResult, error) {
		routing := neo4j.ExecuteQueryWithReadersRouting()
		if write {
			routing = neo4j.ExecuteQueryWithWritersRouting()
		}
		return neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(database), routing)
	}
	p := newProjector(run, options)
	p.driver = driver
	return p, nil
}

func newProjector(run runner, options Options) *Projector {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		run:      run,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}
}

func (p *Projector) Close(ctx context.Context) error {
	if p.driver == nil {
		return nil
	}
	return p.driver.Close(ctx)
}

// ProjectDocument replaces the document's category and finding edges in the graph.
func (p *Projector) ProjectDocument(ctx context.Context, doc *domain.Document, findings []domain.Finding) error {
	if err := p.ensureConstraints(ctx); err != nil {
		return err
	}

	category := doc.Category
	if category == "" {
		category = domain.CategoryOther
	}
	rows := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, map[string]any{
			"rule_id":  f.RuleID,
			"kind":     string(f.Kind),
			"title":    f.Title,
			"severity": string(f.Severity),
			"section":  f.Section,
		})
	}
	params := map[string]any{
		"id":         doc.ID,
		"filename":   doc.Filename,
		"risk_level": string(doc.RiskLevel),
		"category":   category,
		"findings":   rows,
	}

	err := p.execute(ctx, "neo4j.project_document", func(ctx context.Context) error {
		_, err := p.run(ctx, projectCypher, params, true)
		return err
	})
	if err != nil {
		return resilience.WrapTemporary("project document graph", err, classifyNeo4jError)
	}
	p.logger.Debug("graph_document_projected", "document_id", doc.ID, "findings", len(findings))
	return nil
}

// RelatedDocuments ranks documents by the number of rules they share with documentID.
func (p *Projector) RelatedDocuments(ctx context.Context, documentID string, limit int) ([]domain.RelatedDocument, error) {
	var result *neo4j.EagerResult
	err := p.execute(ctx, "neo4j.related_documents", func(ctx context.Context) error {
		var err error
		result, err = p.run(ctx, relatedCypher, map[string]any{"id": documentID, "limit": int64(limit)}, false)
		return err
	})
	if err != nil {
		return nil, resilience.WrapTemporary("related documents graph", err, classifyNeo4jError)
	}

	out := make([]domain.RelatedDocument, 0, len(result.Records))
	for _, record := range result.Records {
		id, _, err := neo4j.GetRecordValue[string](record, "id")
		if err != nil {
			return nil, fmt.Errorf("read related id: %w", err)
		}
		filename, _, err := neo4j.GetRecordValue[string](record, "filename")
		if err != nil {
			return nil, fmt.Errorf("read related filename: %w", err)
		}
		rawRules, _, err := neo4j.GetRecordValue[[]any](record, "rules")
		if err != nil {
			return nil, fmt.Errorf("read shared rules: %w", err)
		}
		rules := make([]string, 0, len(rawRules))
		for _, r := range rawRules {
			if s, ok := r.(string); ok {
				rules = append(rules, s)
			}
		}
		out = append(out, domain.RelatedDocument{DocumentID: id, Filename: filename, SharedRules: rules})
	}
	return out, nil
}

func (p *Projector) ensureConstraints(ctx context.Context) error {
	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()
	if p.ensured {
		return nil
	}
	for _, cypher := range constraints {
		err := p.execute(ctx, "neo4j.ensure_constraints", func(ctx context.Context) error {
			_, err := p.run(ctx, cypher, nil, true)
			return err
		})
		if err != nil {
			return resilience.WrapTemporary("ensure graph constraints", err, classifyNeo4jError)
		}
	}
	p.ensured = true
	return nil
}

func (p *Projector) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if p.executor == nil {
		return fn(ctx)
	}
	return p.executor.Execute(ctx, operation, fn, classifyNeo4jError)
}

func classifyNeo4jError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) || neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
