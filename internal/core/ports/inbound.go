package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
	Reprocess(ctx context.Context, documentID string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata, findings and progress.
type DocumentReader interface {
	List(ctx context.Context, filter domain.DocumentListFilter) ([]domain.Document, error)
	Get(ctx context.Context, id string) (*domain.DocumentDetail, error)
	Progress(ctx context.Context, id string) (*domain.DocumentProgress, error)
	Batch(ctx context.Context, ids []string) (*domain.ProcessingBatch, error)
	SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) (*domain.Document, error)
}

// DocumentSearcher is the inbound contract for filtered full-text search.
type DocumentSearcher interface {
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error)
	Facets(ctx context.Context) (*domain.SearchFacets, error)
}

// DashboardReader aggregates the overview shown after processing.
type DashboardReader interface {
	Summary(ctx context.Context) (*domain.DashboardSummary, error)
}

// InsightsReader computes cross-document trends, patterns and recommendations.
type InsightsReader interface {
	Insights(ctx context.Context, period domain.DateRange) (*domain.Insights, error)
}
