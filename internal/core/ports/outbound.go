package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Document, error)
	List(ctx context.Context, filter domain.DocumentListFilter) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	UpdateProgress(ctx context.Context, id string, stage domain.Stage, progress int) error
	SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error
	SaveAnalysis(ctx context.Context, id string, pages int, analysis domain.Analysis) error
	Stats(ctx context.Context) (domain.DashboardStats, error)
}

// FindingRepository reads persisted findings for detail, dashboard and insights views.
type FindingRepository interface {
	ListByDocument(ctx context.Context, documentID string) ([]domain.Finding, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.FindingRecord, error)
	ListAlerts(ctx context.Context, minSeverity domain.Severity, limit int) ([]domain.FindingRecord, error)
	CountAnalyzedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// SearchIndex stores document chunks and answers lexical queries over them.
type SearchIndex interface {
	IndexChunks(ctx context.Context, documentID string, chunks []string) error
	SearchChunks(ctx context.Context, text string, filter domain.SearchFilter, limit int) ([]domain.ChunkHit, error)
	ListDocuments(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.ChunkHit, int, error)
	Facets(ctx context.Context) (*domain.SearchFacets, error)
}

// RelatedDocumentFinder finds documents sharing findings with the given one.
type RelatedDocumentFinder interface {
	RelatedDocuments(ctx context.Context, documentID string, limit int) ([]domain.RelatedDocument, error)
}

// GraphProjector mirrors documents and their findings into a graph store.
type GraphProjector interface {
	ProjectDocument(ctx context.Context, doc *domain.Document, findings []domain.Finding) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, domain.IngestEvent) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error)
}

// Chunker splits text into search-sized chunks.
type Chunker interface {
	Split(text string) []string
}

// DocumentAnalyzer derives category, tags, summary and findings from extracted text.
type DocumentAnalyzer interface {
	Analyze(doc *domain.Document, text string) domain.Analysis
}

// RecommendationSource resolves rulebook recommendations and metadata for insights.
type RecommendationSource interface {
	Recommendation(ruleID string) (domain.Recommendation, bool)
	RuleSeverity(ruleID string) domain.Severity
}

// ProcessingObserver receives analysis outcomes, typically for metrics.
type ProcessingObserver interface {
	ObserveAnalysis(analysis domain.Analysis)
}
