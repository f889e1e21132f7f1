package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const defaultMaxUploadBytes int64 = 50 << 20

type IngestDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	maxBytes int64
	now      func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	maxBytes int64,
) *IngestDocumentUseCase {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &IngestDocumentUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	filename = strings.TrimSpace(filepath.Base(filename))
	if filename == "" || filename == "." {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("filename is required"))
	}
	fileType := domain.FileTypeOf(filename)
	if fileType == "" {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"validate upload",
			fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, filepath.Ext(filename)),
		)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := uc.now()

	size, err := uc.storage.Save(ctx, storageKey, io.LimitReader(body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if size > uc.maxBytes || size == 0 {
		_ = uc.storage.Delete(ctx, storageKey)
		if size == 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("file is empty"))
		}
		return nil, domain.WrapError(
			domain.ErrPayloadTooLarge,
			"validate upload",
			fmt.Errorf("file exceeds %d bytes", uc.maxBytes),
		)
	}

	doc := &domain.Document{
		ID:           id,
		Filename:     filename,
		MimeType:     mimeType,
		FileType:     fileType,
		SizeBytes:    size,
		StoragePath:  storageKey,
		Tags:         []string{},
		RiskLevel:    domain.SeverityNone,
		Priority:     domain.PriorityLow,
		Status:       domain.StatusUploaded,
		ReviewStatus: domain.ReviewPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		_ = uc.storage.Delete(ctx, storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, uc.failUnpublished(ctx, doc.ID, err)
	}

	return doc, nil
}

// failUnpublished marks a document whose ingest event never left as failed, so it shows up as
// retryable through Reprocess instead of waiting in uploaded forever.
func (uc *IngestDocumentUseCase) failUnpublished(ctx context.Context, documentID string, publishErr error) error {
	publishErr = fmt.Errorf("publish ingestion event: %w", publishErr)
	statusCtx, cancel := terminalStatusContext(ctx)
	defer cancel()
	if err := uc.repo.UpdateStatus(statusCtx, documentID, domain.StatusFailed, publishErr.Error()); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", publishErr, err)
	}
	return publishErr
}

// Reprocess queues a finished document for another processing run.
func (uc *IngestDocumentUseCase) Reprocess(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if !doc.Status.Terminal() {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"reprocess document",
			fmt.Errorf("document is %s", doc.Status),
		)
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusUploaded, ""); err != nil {
		return nil, fmt.Errorf("set status=uploaded: %w", err)
	}
	if err := uc.queue.PublishDocumentIngested(ctx, documentID); err != nil {
		return nil, uc.failUnpublished(ctx, documentID, err)
	}

	doc.Status = domain.StatusUploaded
	doc.Stage = ""
	doc.Progress = 0
	doc.Error = ""
	doc.UpdatedAt = uc.now()
	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
