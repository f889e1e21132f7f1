package neo4j

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type call struct {
	cypher string
	params map[string]any
	write  bool
}

type runnerFake struct {
	calls  []call
	result *neo4j.EagerResult
	err    error
}

func (f *runnerFake) run(_ context.Context, cypher string, params map[string]any, write bool) (*neo4j.EagerResult, error) {
	f.calls = append(f.calls, call{cypher: cypher, params: params, write: write})
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &neo4j.EagerResult{}, nil
	}
	return f.result, nil
}

func TestProjectDocumentEnsuresConstraintsOnce(t *testing.T) {
	fake := &runnerFake{}
	p := newProjector(fake.run, Options{})
	doc := &domain.Document{ID: "doc-1", Filename: "contract.pdf", RiskLevel: domain.SeverityHigh}
	findings := []domain.Finding{{RuleID: "excessive-penalty", Kind: domain.KindRisk, Severity: domain.SeverityHigh, Title: "Penalty"}}

	for range 2 {
		if err := p.ProjectDocument(context.Background(), doc, findings); err != nil {
			t.Fatalf("ProjectDocument() error = %v", err)
		}
	}

	if len(fake.calls) != len(constraints)+2 {
		t.Fatalf("expected %d calls, got %d", len(constraints)+2, len(fake.calls))
	}
	last := fake.calls[len(fake.calls)-1]
	if !last.write || !strings.Contains(last.cypher, "MERGE (d:Document {id: $id})") {
		t.Fatalf("unexpected projection call: %+v", last)
	}
	if last.params["category"] != domain.CategoryOther {
		t.Fatalf("expected uncategorized document to land in %q, got %v", domain.CategoryOther, last.params["category"])
	}
	rows, ok := last.params["findings"].([]map[string]any)
	if !ok || len(rows) != 1 || rows[0]["rule_id"] != "excessive-penalty" {
		t.Fatalf("unexpected findings param: %#v", last.params["findings"])
	}
}

func TestProjectDocumentMarksFailuresTemporaryWhenRetryable(t *testing.T) {
	fake := &runnerFake{err: &neo4j.ConnectivityError{Inner: errors.New("connection refused")}}
	p := newProjector(fake.run, Options{})

	err := p.ProjectDocument(context.Background(), &domain.Document{ID: "doc-1"}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestRelatedDocumentsReadsRecords(t *testing.T) {
	fake := &runnerFake{result: &neo4j.EagerResult{
		Keys: []string{"id", "filename", "rules"},
		Records: []*neo4j.Record{
			{Keys: []string{"id", "filename", "rules"}, Values: []any{"doc-2", "other.pdf", []any{"excessive-penalty", "volume-discount"}}},
		},
	}}
	p := newProjector(fake.run, Options{})

	related, err := p.RelatedDocuments(context.Background(), "doc-1", 5)
	if err != nil {
		t.Fatalf("RelatedDocuments() error = %v", err)
	}
	if len(related) != 1 || related[0].DocumentID != "doc-2" || len(related[0].SharedRules) != 2 {
		t.Fatalf("unexpected related documents: %+v", related)
	}
	if fake.calls[0].write || fake.calls[0].params["limit"] != int64(5) {
		t.Fatalf("unexpected query call: %+v", fake.calls[0])
	}
}
