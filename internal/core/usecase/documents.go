package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	defaultListLimit    = 50
	maxListLimit        = 200
	defaultRelatedLimit = 5
	maxBatchSize        = 100
)

type DocumentsUseCase struct {
	repo     ports.DocumentRepository
	findings ports.FindingRepository
	related  ports.RelatedDocumentFinder
	logger   *slog.Logger
}

func NewDocumentsUseCase(
	repo ports.DocumentRepository,
	findings ports.FindingRepository,
	related ports.RelatedDocumentFinder,
) *DocumentsUseCase {
	return &DocumentsUseCase{
		repo:     repo,
		findings: findings,
		related:  related,
		logger:   slog.Default(),
	}
}

func (uc *DocumentsUseCase) WithLogger(logger *slog.Logger) *DocumentsUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

func (uc *DocumentsUseCase) List(ctx context.Context, filter domain.DocumentListFilter) ([]domain.Document, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", errors.New("offset must be >= 0"))
	}
	docs, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (uc *DocumentsUseCase) Get(ctx context.Context, id string) (*domain.DocumentDetail, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	findings, err := uc.findings.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}

	detail := &domain.DocumentDetail{Document: *doc, Related: []domain.RelatedDocument{}}
	detail.Risks, detail.Opportunities, detail.Inconsistencies = domain.GroupFindings(findings)

	if uc.related != nil && len(findings) > 0 {
		related, err := uc.related.RelatedDocuments(ctx, id, defaultRelatedLimit)
		if err != nil {
			uc.logger.Warn("related_documents_failed", "document_id", id, "error", err)
		} else if related != nil {
			detail.Related = related
		}
	}
	return detail, nil
}

func (uc *DocumentsUseCase) Progress(ctx context.Context, id string) (*domain.DocumentProgress, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	progress := progressOf(*doc)
	return &progress, nil
}

// Batch summarizes processing of several documents the way the processing screen shows it.
func (uc *DocumentsUseCase) Batch(ctx context.Context, ids []string) (*domain.ProcessingBatch, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "processing batch", errors.New("at least one document id is required"))
	}
	if len(ids) > maxBatchSize {
		return nil, domain.WrapError(domain.ErrInvalidInput, "processing batch", fmt.Errorf("at most %d ids are allowed", maxBatchSize))
	}

	docs, err := uc.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	byID := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	batch := &domain.ProcessingBatch{
		Total:     len(ids),
		Documents: make([]domain.DocumentProgress, 0, len(ids)),
	}
	sum := 0
	for _, id := range ids {
		doc, ok := byID[id]
		if !ok {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "processing batch", fmt.Errorf("id %s", id))
		}
		switch doc.Status {
		case domain.StatusReady:
			batch.Processed++
		case domain.StatusFailed:
			batch.Failed++
		}
		if doc.Status.Terminal() {
			sum += 100
		} else {
			sum += doc.Progress
		}
		batch.Documents = append(batch.Documents, progressOf(doc))
	}

	batch.Progress = sum / len(ids)
	batch.Remaining = batch.Total - batch.Processed - batch.Failed
	batch.Completed = batch.Remaining == 0
	batch.Stages = stageProgress(batch.Progress)
	return batch, nil
}

func (uc *DocumentsUseCase) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) (*domain.Document, error) {
	if _, ok := domain.ParseReviewStatus(string(status)); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "set review status", fmt.Errorf("unknown review status %q", status))
	}
	if err := uc.repo.SetReviewStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("set review status: %w", err)
	}
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func progressOf(doc domain.Document) domain.DocumentProgress {
	return domain.DocumentProgress{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status,
		Stage:      doc.Stage,
		Progress:   doc.Progress,
		TagCount:   len(doc.Tags),
		Error:      doc.Error,
	}
}

// stageProgress spreads overall progress over the pipeline stages, each owning an equal slice.
func stageProgress(overall int) []domain.StageProgress {
	share := 100 / len(domain.Stages)
	out := make([]domain.StageProgress, 0, len(domain.Stages))
	for i, stage := range domain.Stages {
		p := (overall - i*share) * 100 / share
		p = max(0, min(100, p))
		status := domain.StepPending
		switch {
		case p >= 100:
			status = domain.StepCompleted
		case p > 0:
			status = domain.StepProcessing
		}
		out = append(out, domain.StageProgress{Stage: stage, Status: status, Progress: p})
	}
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
