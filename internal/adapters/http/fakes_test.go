package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/domain"
)

type ingestorFake struct {
	mu        sync.Mutex
	uploaded  []string
	uploadErr map[string]error
	err       error
}

func (f *ingestorFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if err := f.uploadErr[filename]; err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}

	f.mu.Lock()
	f.uploaded = append(f.uploaded, filename)
	f.mu.Unlock()

	now := time.Now().UTC()
	return &domain.Document{
		ID:           "doc-" + filename,
		Filename:     filename,
		MimeType:     mimeType,
		FileType:     domain.FileTypeOf(filename),
		SizeBytes:    int64(len(raw)),
		StoragePath:  "doc-1_" + filename,
		Tags:         []string{},
		Status:       domain.StatusUploaded,
		ReviewStatus: domain.ReviewPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (f *ingestorFake) Reprocess(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Status: domain.StatusUploaded, Tags: []string{}}, nil
}

type documentsFake struct {
	err          error
	detail       *domain.DocumentDetail
	batches      []*domain.ProcessingBatch
	batchCalls   int
	lastFilter   domain.DocumentListFilter
	lastBatchIDs []string
	lastReview   domain.ReviewStatus
	mu           sync.Mutex
}

func (f *documentsFake) List(_ context.Context, filter domain.DocumentListFilter) ([]domain.Document, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Document{{ID: "doc-1", Filename: "contract.pdf", Tags: []string{}}}, nil
}

func (f *documentsFake) Get(_ context.Context, id string) (*domain.DocumentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.detail != nil {
		return f.detail, nil
	}
	return &domain.DocumentDetail{
		Document:        domain.Document{ID: id, Filename: "contract.pdf", Tags: []string{}},
		Risks:           []domain.Finding{},
		Opportunities:   []domain.Finding{},
		Inconsistencies: []domain.Finding{},
		Related:         []domain.RelatedDocument{},
	}, nil
}

func (f *documentsFake) Progress(_ context.Context, id string) (*domain.DocumentProgress, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentProgress{DocumentID: id, Status: domain.StatusProcessing, Stage: domain.StageAnalyzing, Progress: 40}, nil
}

// Batch replays the configured snapshots in order and repeats the last one.
func (f *documentsFake) Batch(_ context.Context, ids []string) (*domain.ProcessingBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBatchIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return &domain.ProcessingBatch{Total: len(ids), Completed: true}, nil
	}
	i := min(f.batchCalls, len(f.batches)-1)
	f.batchCalls++
	return f.batches[i], nil
}

func (f *documentsFake) SetReviewStatus(_ context.Context, id string, status domain.ReviewStatus) (*domain.Document, error) {
	f.lastReview = status
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, ReviewStatus: status, Tags: []string{}}, nil
}

type searchFake struct {
	err       error
	lastQuery domain.SearchQuery
}

func (f *searchFake) Search(_ context.Context, query domain.SearchQuery) (*domain.SearchResponse, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchResponse{
		Query:   query.Text,
		Results: []domain.SearchResult{{DocumentID: "doc-1", Name: "contract.pdf", Match: 87, Tags: []string{}}},
		Total:   1,
	}, nil
}

func (f *searchFake) Facets(context.Context) (*domain.SearchFacets, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SearchFacets{Categories: []string{"Contract"}, Tags: []string{}, RiskLevels: []string{"high"}, FileTypes: []string{"PDF"}}, nil
}

type dashboardFake struct{}

func (dashboardFake) Summary(context.Context) (*domain.DashboardSummary, error) {
	return &domain.DashboardSummary{Stats: domain.DashboardStats{Total: 3, Pending: 2}}, nil
}

type insightsFake struct {
	lastPeriod domain.DateRange
}

func (f *insightsFake) Insights(_ context.Context, period domain.DateRange) (*domain.Insights, error) {
	f.lastPeriod = period
	if period == domain.DateRangeAll {
		return nil, domain.WrapError(domain.ErrInvalidInput, "insights", io.ErrUnexpectedEOF)
	}
	return &domain.Insights{Period: period}, nil
}

type routerFixture struct {
	ingestor  *ingestorFake
	documents *documentsFake
	search    *searchFake
	insights  *insightsFake
}

func newFixture() *routerFixture {
	return &routerFixture{
		ingestor:  &ingestorFake{},
		documents: &documentsFake{},
		search:    &searchFake{},
		insights:  &insightsFake{},
	}
}

func (f *routerFixture) handler(cfg config.Config, opts ...Option) http.Handler {
	return NewRouter(cfg, Services{
		Ingestor:  f.ingestor,
		Documents: f.documents,
		Search:    f.search,
		Dashboard: dashboardFake{},
		Insights:  f.insights,
	}, opts...).Handler()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
