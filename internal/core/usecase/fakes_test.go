package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type progressCall struct {
	stage    domain.Stage
	progress int
}

// docRepoFake is an in-memory document repository mirroring the postgres status semantics.
type docRepoFake struct {
	mu            sync.Mutex
	docs          map[string]*domain.Document
	createErr     error
	getErr        error
	saveErr       error
	statusErr     error
	failStatusErr error
	statusCalls   []statusCall
	progressCalls []progressCall
	saved         *domain.Analysis
	savedPages    int
	stats         domain.DashboardStats
	listFilter    domain.DocumentListFilter
}

func newDocRepoFake(docs ...domain.Document) *docRepoFake {
	f := &docRepoFake{docs: make(map[string]*domain.Document)}
	for i := range docs {
		d := docs[i]
		f.docs[d.ID] = &d
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) GetMany(_ context.Context, ids []string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) List(_ context.Context, filter domain.DocumentListFilter) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilter = filter
	out := make([]domain.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *docRepoFake) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.Error = errMessage
	switch status {
	case domain.StatusReady:
		doc.Stage, doc.Progress = domain.StageDone, 100
	case domain.StatusUploaded:
		doc.Stage, doc.Progress = "", 0
	}
	return nil
}

func (f *docRepoFake) UpdateProgress(ctx context.Context, id string, stage domain.Stage, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.progressCalls = append(f.progressCalls, progressCall{stage: stage, progress: progress})
	if doc, ok := f.docs[id]; ok {
		doc.Stage, doc.Progress = stage, progress
	}
	return nil
}

func (f *docRepoFake) SetReviewStatus(_ context.Context, id string, status domain.ReviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.ReviewStatus = status
	return nil
}

func (f *docRepoFake) SaveAnalysis(_ context.Context, id string, pages int, analysis domain.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &analysis
	f.savedPages = pages
	if doc, ok := f.docs[id]; ok {
		doc.Category = analysis.Category
		doc.Tags = analysis.Tags
		doc.RiskLevel = analysis.RiskLevel
		doc.Pages = pages
	}
	return nil
}

func (f *docRepoFake) Stats(context.Context) (domain.DashboardStats, error) {
	return f.stats, nil
}

func (f *docRepoFake) lastStatus() domain.DocumentStatus {
	if len(f.statusCalls) == 0 {
		return ""
	}
	return f.statusCalls[len(f.statusCalls)-1].status
}

type findingRepoFake struct {
	byDocument map[string][]domain.Finding
	current    []domain.FindingRecord
	previous   []domain.FindingRecord
	alerts     []domain.FindingRecord
	analyzed   int
	err        error
	windows    [][2]time.Time
	alertMin   domain.Severity
}

func (f *findingRepoFake) ListByDocument(_ context.Context, id string) ([]domain.Finding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byDocument[id], nil
}

// ListBetween returns current for the first window requested and previous afterwards.
func (f *findingRepoFake) ListBetween(_ context.Context, from, to time.Time) ([]domain.FindingRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.windows = append(f.windows, [2]time.Time{from, to})
	if len(f.windows) == 1 {
		return f.current, nil
	}
	return f.previous, nil
}

func (f *findingRepoFake) ListAlerts(_ context.Context, minSeverity domain.Severity, limit int) ([]domain.FindingRecord, error) {
	f.alertMin = minSeverity
	if len(f.alerts) > limit {
		return f.alerts[:limit], nil
	}
	return f.alerts, nil
}

func (f *findingRepoFake) CountAnalyzedBetween(context.Context, time.Time, time.Time) (int, error) {
	return f.analyzed, nil
}

type storageFake struct {
	saved   map[string]string
	deleted []string
	err     error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: make(map[string]string)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.saved[key] = string(raw)
	return int64(len(raw)), nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.saved[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.saved, key)
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, domain.IngestEvent) error) error {
	return errors.New("not implemented")
}

type indexFake struct {
	indexedID   string
	chunks      []string
	indexErr    error
	hits        []domain.ChunkHit
	listed      []domain.ChunkHit
	listTotal   int
	lastFilter  domain.SearchFilter
	lastLimit   int
	lastText    string
	facets      *domain.SearchFacets
	searchCalls int
}

func (f *indexFake) IndexChunks(_ context.Context, documentID string, chunks []string) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexedID = documentID
	f.chunks = chunks
	return nil
}

func (f *indexFake) SearchChunks(_ context.Context, text string, filter domain.SearchFilter, limit int) ([]domain.ChunkHit, error) {
	f.searchCalls++
	f.lastText = text
	f.lastFilter = filter
	f.lastLimit = limit
	return f.hits, nil
}

func (f *indexFake) ListDocuments(_ context.Context, filter domain.SearchFilter, limit, _ int) ([]domain.ChunkHit, int, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.listed, f.listTotal, nil
}

func (f *indexFake) Facets(context.Context) (*domain.SearchFacets, error) {
	return f.facets, nil
}
