package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	dashboardAlertLimit  = 5
	dashboardRecentLimit = 5
	actionReviewDocument = "review_document"
)

type DashboardUseCase struct {
	repo     ports.DocumentRepository
	findings ports.FindingRepository
}

func NewDashboardUseCase(repo ports.DocumentRepository, findings ports.FindingRepository) *DashboardUseCase {
	return &DashboardUseCase{repo: repo, findings: findings}
}

func (uc *DashboardUseCase) Summary(ctx context.Context) (*domain.DashboardSummary, error) {
	stats, err := uc.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load document stats: %w", err)
	}

	records, err := uc.findings.ListAlerts(ctx, domain.SeverityHigh, dashboardAlertLimit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts := make([]domain.Alert, 0, len(records))
	for _, r := range records {
		alerts = append(alerts, domain.Alert{
			ID:         r.ID,
			Message:    fmt.Sprintf("%s in %s", r.Title, r.Filename),
			DocumentID: r.DocumentID,
			Document:   r.Filename,
			Severity:   r.Severity,
			Action:     actionReviewDocument,
		})
	}

	recent, err := uc.repo.List(ctx, domain.DocumentListFilter{Limit: dashboardRecentLimit})
	if err != nil {
		return nil, fmt.Errorf("list recent documents: %w", err)
	}
	if recent == nil {
		recent = []domain.Document{}
	}

	return &domain.DashboardSummary{
		Stats:           stats,
		CriticalAlerts:  alerts,
		RecentDocuments: recent,
	}, nil
}
