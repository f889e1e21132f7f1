package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type extractorFake struct {
	text  string
	pages int
	err   error
	// block makes Extract wait for the context to end, like a stuck parser.
	block bool
}

func (f *extractorFake) Extract(ctx context.Context, _ *domain.Document) (domain.ExtractedText, error) {
	if f.block {
		<-ctx.Done()
		return domain.ExtractedText{}, ctx.Err()
	}
	if f.err != nil {
		return domain.ExtractedText{}, f.err
	}
	return domain.ExtractedText{Text: f.text, Pages: f.pages}, nil
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

type analyzerFake struct {
	analysis domain.Analysis
	text     string
}

func (f *analyzerFake) Analyze(_ *domain.Document, text string) domain.Analysis {
	f.text = text
	out := f.analysis
	out.Findings = append([]domain.Finding(nil), f.analysis.Findings...)
	return out
}

type graphFake struct {
	doc      *domain.Document
	findings []domain.Finding
	err      error
}

func (f *graphFake) ProjectDocument(_ context.Context, doc *domain.Document, findings []domain.Finding) error {
	f.doc = doc
	f.findings = findings
	return f.err
}

type observerFake struct {
	observed []domain.Analysis
}

func (f *observerFake) ObserveAnalysis(a domain.Analysis) {
	f.observed = append(f.observed, a)
}

func sampleAnalysis() domain.Analysis {
	return domain.Analysis{
		Category:  "Contract",
		Tags:      []string{"Risk", "Financial"},
		Summary:   "Supply agreement.",
		RiskLevel: domain.SeverityCritical,
		Priority:  domain.PriorityHigh,
		Findings: []domain.Finding{
			{RuleID: "excessive-penalty", Kind: domain.KindRisk, Severity: domain.SeverityCritical, Title: "Excessive penalty clause"},
			{RuleID: "volume-discount", Kind: domain.KindOpportunity, Severity: domain.SeverityMedium, Title: "Volume discount"},
		},
	}
}

func newProcessFixture() (*docRepoFake, *indexFake, *ProcessDocumentUseCase) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1", Filename: "contract.pdf", Status: domain.StatusUploaded})
	index := &indexFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "penalty of 15%", pages: 3},
		&chunkerFake{chunks: []string{"a", "b"}},
		&analyzerFake{analysis: sampleAnalysis()},
		index,
	)
	return repo, index, uc
}

func TestProcessByIDSuccess(t *testing.T) {
	repo, index, uc := newProcessFixture()
	graph := &graphFake{}
	observer := &observerFake{}
	uc.WithGraph(graph).WithObserver(observer)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}

	wantProgress := []int{0, 20, 40, 60, 80}
	if len(repo.progressCalls) != len(wantProgress) {
		t.Fatalf("expected %d progress updates, got %+v", len(wantProgress), repo.progressCalls)
	}
	for i, call := range repo.progressCalls {
		if call.stage != domain.Stages[i] || call.progress != wantProgress[i] {
			t.Fatalf("unexpected progress update %d: %+v", i, call)
		}
	}

	doc := repo.docs["doc-1"]
	if doc.Status != domain.StatusReady || doc.Progress != 100 {
		t.Fatalf("expected ready at 100, got %s at %d", doc.Status, doc.Progress)
	}
	if repo.saved == nil || repo.savedPages != 3 {
		t.Fatalf("expected analysis saved with 3 pages, got %+v", repo.saved)
	}
	for _, f := range repo.saved.Findings {
		if f.ID == "" || f.DocumentID != "doc-1" || f.CreatedAt.IsZero() {
			t.Fatalf("expected stamped finding, got %+v", f)
		}
	}
	if index.indexedID != "doc-1" || len(index.chunks) != 2 {
		t.Fatalf("expected 2 chunks indexed for doc-1, got %s/%d", index.indexedID, len(index.chunks))
	}
	if graph.doc == nil || graph.doc.Category != "Contract" || len(graph.findings) != 2 {
		t.Fatalf("expected graph projection of classified doc, got %+v", graph.doc)
	}
	if len(observer.observed) != 1 {
		t.Fatalf("expected one observed analysis, got %d", len(observer.observed))
	}
}

func TestProcessByIDGraphFailureIsNotFatal(t *testing.T) {
	repo, _, uc := newProcessFixture()
	uc.WithGraph(&graphFake{err: errors.New("neo4j down")})

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if repo.lastStatus() != domain.StatusReady {
		t.Fatalf("expected ready, got %s", repo.lastStatus())
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1"})
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{chunks: []string{"a"}},
		&analyzerFake{},
		&indexFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected processing + failed status updates, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls[1])
	}
	if !strings.Contains(repo.statusCalls[1].errMsg, "extract fail") {
		t.Fatalf("expected error message to be recorded, got %q", repo.statusCalls[1].errMsg)
	}
	if repo.docs["doc-1"].Stage != domain.StageExtracting {
		t.Fatalf("expected failure during extracting, got %s", repo.docs["doc-1"].Stage)
	}
}

func TestProcessByIDMarksFailedOnEmptyText(t *testing.T) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1"})
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "  \n "},
		&chunkerFake{chunks: []string{"a"}},
		&analyzerFake{},
		&indexFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.lastStatus() != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", repo.lastStatus())
	}
}

func TestProcessByIDMarksFailedOnZeroChunks(t *testing.T) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1"})
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{text: "text"},
		&chunkerFake{},
		&analyzerFake{},
		&indexFake{},
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}
	if repo.lastStatus() != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", repo.lastStatus())
	}
}

func TestProcessByIDMarksFailedOnIndexError(t *testing.T) {
	repo, index, uc := newProcessFixture()
	index.indexErr = errors.New("index down")

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "index chunks") {
		t.Fatalf("expected index error, got %v", err)
	}
	if repo.lastStatus() != domain.StatusFailed {
		t.Fatalf("expected failed status, got %s", repo.lastStatus())
	}
}

func TestProcessByIDReportsMarkFailedError(t *testing.T) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1"})
	repo.failStatusErr = errors.New("db gone")
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{err: errors.New("extract fail")},
		&chunkerFake{},
		&analyzerFake{},
		&indexFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "mark failed status") {
		t.Fatalf("expected combined error, got %v", err)
	}
}

func TestProcessByIDMarksFailedAfterTimeout(t *testing.T) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1", Status: domain.StatusUploaded})
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{block: true},
		&chunkerFake{chunks: []string{"a"}},
		&analyzerFake{},
		&indexFake{},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := uc.ProcessByID(ctx, "doc-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if strings.Contains(err.Error(), "mark failed status") {
		t.Fatalf("failed status was not written: %v", err)
	}

	doc := repo.docs["doc-1"]
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed after timeout, got %s", doc.Status)
	}
	if !doc.Status.Terminal() {
		t.Fatalf("expected a terminal status that can be reprocessed")
	}
}

func TestProcessByIDMarksFailedAfterCancel(t *testing.T) {
	repo := newDocRepoFake(domain.Document{ID: "doc-1", Status: domain.StatusUploaded})
	uc := NewProcessDocumentUseCase(
		repo,
		&extractorFake{block: true},
		&chunkerFake{chunks: []string{"a"}},
		&analyzerFake{},
		&indexFake{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := uc.ProcessByID(ctx, "doc-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if got := repo.docs["doc-1"].Status; got != domain.StatusFailed {
		t.Fatalf("expected failed after cancel, got %s", got)
	}
}
