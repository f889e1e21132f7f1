package httpadapter

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// bindQuery binds an optional exploded form parameter, leaving dest untouched when absent.
func bindQuery(query url.Values, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, query, dest); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "bind query", err)
	}
	return nil
}

// bindIDs reads the required comma separated ids parameter.
func bindIDs(query url.Values) ([]string, error) {
	var ids []string
	if err := runtime.BindQueryParameter("form", false, true, "ids", query, &ids); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "bind query", err)
	}
	return ids, nil
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		status, reviewStatus, riskLevel, category string
		limit, offset                             int
	)
	for name, dest := range map[string]any{
		"status":        &status,
		"review_status": &reviewStatus,
		"risk_level":    &riskLevel,
		"category":      &category,
		"limit":         &limit,
		"offset":        &offset,
	} {
		if err := bindQuery(query, name, dest); err != nil {
			rt.writeError(w, r, err)
			return
		}
	}

	filter := domain.DocumentListFilter{
		Category: strings.TrimSpace(category),
		Limit:    limit,
		Offset:   offset,
	}
	if status != "" {
		parsed, ok := parseDocumentStatus(status)
		if !ok {
			rt.writeError(w, r, invalidParam("status", status))
			return
		}
		filter.Status = parsed
	}
	if reviewStatus != "" {
		parsed, ok := domain.ParseReviewStatus(reviewStatus)
		if !ok {
			rt.writeError(w, r, invalidParam("review_status", reviewStatus))
			return
		}
		filter.ReviewStatus = parsed
	}
	if riskLevel != "" {
		parsed, ok := domain.ParseSeverity(riskLevel)
		if !ok {
			rt.writeError(w, r, invalidParam("risk_level", riskLevel))
			return
		}
		filter.RiskLevel = parsed
	}

	docs, err := rt.services.Documents.List(r.Context(), filter)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.services.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) getDocumentProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := rt.services.Documents.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (rt *Router) setReviewStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReviewStatus string `json:"review_status"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode review request", err))
		return
	}
	status, ok := domain.ParseReviewStatus(req.ReviewStatus)
	if !ok {
		rt.writeError(w, r, invalidParam("review_status", req.ReviewStatus))
		return
	}

	doc, err := rt.services.Documents.SetReviewStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.services.Ingestor.Reprocess(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) exportReport(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.services.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = report.WriteDocumentReport(&buf, detail)
	if rt.metrics != nil {
		rt.metrics.RecordReportExport(serviceName, err)
	}
	if err != nil {
		rt.writeError(w, r, fmt.Errorf("render report: %w", err))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": reportFilename(detail.Document.Filename),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) getProcessingBatch(w http.ResponseWriter, r *http.Request) {
	ids, err := bindIDs(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	batch, err := rt.services.Documents.Batch(r.Context(), ids)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func parseDocumentStatus(raw string) (domain.DocumentStatus, bool) {
	switch s := domain.DocumentStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case domain.StatusUploaded, domain.StatusProcessing, domain.StatusReady, domain.StatusFailed:
		return s, true
	default:
		return "", false
	}
}

func invalidParam(name, value string) error {
	return domain.WrapError(domain.ErrInvalidInput, "validate request", fmt.Errorf("unsupported %s %q", name, value))
}

func reportFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "document"
	}
	return base + "_report.xlsx"
}
