package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const terminalStatusTimeout = 5 * time.Second

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	analyzer  ports.DocumentAnalyzer
	index     ports.SearchIndex
	graph     ports.GraphProjector
	observer  ports.ProcessingObserver
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	analyzer ports.DocumentAnalyzer,
	index ports.SearchIndex,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		analyzer:  analyzer,
		index:     index,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithGraph mirrors processed documents into a graph store. Projection failures are logged only.
func (uc *ProcessDocumentUseCase) WithGraph(graph ports.GraphProjector) *ProcessDocumentUseCase {
	uc.graph = graph
	return uc
}

func (uc *ProcessDocumentUseCase) WithObserver(observer ports.ProcessingObserver) *ProcessDocumentUseCase {
	uc.observer = observer
	return uc
}

func (uc *ProcessDocumentUseCase) WithLogger(logger *slog.Logger) *ProcessDocumentUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, documentID); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	// The pipeline finished; the outcome is recorded even if ctx expired meanwhile.
	statusCtx, cancel := terminalStatusContext(ctx)
	defer cancel()
	if err := uc.markStatus(statusCtx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) error {
	if err := uc.enterStage(ctx, documentID, domain.StageReading); err != nil {
		return err
	}
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := uc.enterStage(ctx, documentID, domain.StageExtracting); err != nil {
		return err
	}
	extracted, err := uc.extractText(ctx, doc)
	if err != nil {
		return err
	}

	if err := uc.enterStage(ctx, documentID, domain.StageAnalyzing); err != nil {
		return err
	}
	chunks, err := uc.chunk(extracted.Text)
	if err != nil {
		return err
	}
	analysis := uc.analyzer.Analyze(doc, extracted.Text)

	if err := uc.enterStage(ctx, documentID, domain.StageClassifying); err != nil {
		return err
	}
	uc.applyClassification(doc, analysis)

	if err := uc.enterStage(ctx, documentID, domain.StageRiskDetection); err != nil {
		return err
	}
	uc.stampFindings(doc, analysis.Findings)
	if err := uc.persistAnalysis(ctx, doc.ID, extracted.Pages, analysis); err != nil {
		return err
	}
	if err := uc.indexChunks(ctx, doc.ID, chunks); err != nil {
		return err
	}
	uc.project(ctx, doc, analysis.Findings)

	if uc.observer != nil {
		uc.observer.ObserveAnalysis(analysis)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) enterStage(ctx context.Context, documentID string, stage domain.Stage) error {
	if err := uc.repo.UpdateProgress(ctx, documentID, stage, domain.StageStart(stage)); err != nil {
		return fmt.Errorf("set stage=%s: %w", stage, err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error) {
	extracted, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return extracted, nil
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) applyClassification(doc *domain.Document, analysis domain.Analysis) {
	doc.Category = analysis.Category
	doc.Tags = analysis.Tags
	doc.Summary = analysis.Summary
	doc.RiskLevel = analysis.RiskLevel
	doc.Priority = analysis.Priority
}

func (uc *ProcessDocumentUseCase) stampFindings(doc *domain.Document, findings []domain.Finding) {
	now := uc.now()
	for i := range findings {
		findings[i].ID = uuid.NewString()
		findings[i].DocumentID = doc.ID
		findings[i].CreatedAt = now
	}
}

func (uc *ProcessDocumentUseCase) persistAnalysis(ctx context.Context, documentID string, pages int, analysis domain.Analysis) error {
	if err := uc.repo.SaveAnalysis(ctx, documentID, pages, analysis); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) indexChunks(ctx context.Context, documentID string, chunks []string) error {
	if err := uc.index.IndexChunks(ctx, documentID, chunks); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) project(ctx context.Context, doc *domain.Document, findings []domain.Finding) {
	if uc.graph == nil {
		return
	}
	if err := uc.graph.ProjectDocument(ctx, doc, findings); err != nil {
		uc.logger.Warn("graph_projection_failed", "document_id", doc.ID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	statusCtx, cancel := terminalStatusContext(ctx)
	defer cancel()
	return uc.markStatus(statusCtx, documentID, domain.StatusFailed, processErr.Error())
}

// terminalStatusContext detaches from a cancelled or timed-out run so a document never stays
// in processing.
func terminalStatusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalStatusTimeout)
}
