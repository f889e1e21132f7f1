package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func newFindingRepoWithMock(t *testing.T) (*FindingRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewFindingRepository(db), mock, func() { _ = db.Close() }
}

var recordColumns = []string{"id", "document_id", "rule_id", "kind", "severity", "title", "description", "section",
	"impact", "excerpt", "created_at", "filename", "category"}

func TestListAlertsSelectsSeveritiesAtOrAboveMinimum(t *testing.T) {
	repo, mock, done := newFindingRepoWithMock(t)
	defer done()

	mock.ExpectQuery("f.kind <> 'opportunity'").
		WithArgs(`["critical","high"]`, 5).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(
			"f1", "doc-1", "excessive-penalty", "risk", "critical", "Excessive penalty", "", "Clause 5", "", "", fixedNow,
			"contract.pdf", "Contract",
		))

	records, err := repo.ListAlerts(context.Background(), domain.SeverityHigh, 5)
	if err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if len(records) != 1 || records[0].Filename != "contract.pdf" || records[0].Severity != domain.SeverityCritical {
		t.Fatalf("unexpected records: %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListBetweenPassesWindow(t *testing.T) {
	repo, mock, done := newFindingRepoWithMock(t)
	defer done()

	from := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery("f.created_at >= \\$1 AND f.created_at < \\$2").
		WithArgs(from, fixedNow).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	records, err := repo.ListBetween(context.Background(), from, fixedNow)
	if err != nil {
		t.Fatalf("ListBetween() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestListByDocumentKeepsPosition(t *testing.T) {
	repo, mock, done := newFindingRepoWithMock(t)
	defer done()

	columns := recordColumns[:11]
	mock.ExpectQuery("ORDER BY position").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("f1", "doc-1", "a", "risk", "high", "A", "", "", "", "", fixedNow).
			AddRow("f2", "doc-1", "b", "opportunity", "low", "B", "", "", "", "", fixedNow))

	findings, err := repo.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(findings) != 2 || findings[0].RuleID != "a" || findings[1].Kind != domain.KindOpportunity {
		t.Fatalf("unexpected findings: %+v", findings)
	}
}

func TestCountAnalyzedBetween(t *testing.T) {
	repo, mock, done := newFindingRepoWithMock(t)
	defer done()

	from := fixedNow.AddDate(0, -3, 0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'ready' AND processed_at >= $1 AND processed_at < $2")).
		WithArgs(from, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	n, err := repo.CountAnalyzedBetween(context.Background(), from, fixedNow)
	if err != nil {
		t.Fatalf("CountAnalyzedBetween() error = %v", err)
	}
	if n != 9 {
		t.Fatalf("CountAnalyzedBetween() = %d, want 9", n)
	}
}

func TestRelatedDocumentsDecodesSharedRules(t *testing.T) {
	repo, mock, done := newFindingRepoWithMock(t)
	defer done()

	mock.ExpectQuery("jsonb_agg").
		WithArgs("doc-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "filename", "rules"}).
			AddRow("doc-2", "other.pdf", []byte(`["excessive-penalty","missing-force-majeure"]`)))

	related, err := repo.RelatedDocuments(context.Background(), "doc-1", 3)
	if err != nil {
		t.Fatalf("RelatedDocuments() error = %v", err)
	}
	if len(related) != 1 || related[0].DocumentID != "doc-2" || len(related[0].SharedRules) != 2 {
		t.Fatalf("unexpected related documents: %+v", related)
	}
}
