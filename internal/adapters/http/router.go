package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/routers"

	"github.com/kirillkom/docintel/internal/config"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	serviceName          = "api"
	processingStreamPath = "/v1/processing/stream"
)

// Services bundles the inbound ports served over HTTP.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Search    ports.DocumentSearcher
	Dashboard ports.DashboardReader
	Insights  ports.InsightsReader
}

// Metrics is the subset of the prometheus HTTP metrics the router records.
type Metrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordUpload(service, fileType string, sizeBytes int64, err error)
	RecordSearch(service string, browse bool, total int, duration time.Duration)
	RecordRejected(service, reason string)
	TrackStream() func()
	RecordReportExport(service string, err error)
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  Metrics
	logger   *slog.Logger
	openapi  routers.Router
}

type Option func(*Router)

func WithMetrics(m Metrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, services Services, opts ...Option) *Router {
	rt := &Router{
		cfg:      cfg,
		services: services,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if cfg.APIRequestValidation {
		router, err := loadOpenAPIRouter(context.Background())
		if err != nil {
			// The document is embedded, so this only happens when it is edited into an invalid state.
			panic(err)
		}
		rt.openapi = router
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocuments)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("GET /v1/documents/{id}/progress", rt.getDocumentProgress)
	mux.HandleFunc("PATCH /v1/documents/{id}/review", rt.setReviewStatus)
	mux.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	mux.HandleFunc("GET /v1/documents/{id}/report.xlsx", rt.exportReport)

	mux.HandleFunc("GET /v1/processing", rt.getProcessingBatch)
	mux.HandleFunc("GET "+processingStreamPath, rt.streamProcessingBatch)

	mux.HandleFunc("GET /v1/dashboard", rt.getDashboard)
	mux.HandleFunc("POST /v1/search", rt.searchDocuments)
	mux.HandleFunc("GET /v1/search/facets", rt.getSearchFacets)
	mux.HandleFunc("GET /v1/insights", rt.getInsights)

	var handler http.Handler = mux
	if rt.openapi != nil {
		handler = requestValidationMiddleware(rt.openapi, handler)
	}
	// Progress streams stay open for minutes, so they get their own cap instead of holding
	// request slots.
	handler = splitByPath(
		processingStreamPath,
		backpressureMiddlewareWithReject(handler, rt.cfg.APIProgressStreamMaxOpen, 0, rt.rejected("stream_limit")),
		backpressureMiddlewareWithReject(
			handler,
			rt.cfg.APIBackpressureMaxInFlight,
			time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
			rt.rejected("backpressure"),
		),
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected("rate_limit"))
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = recoverMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) rejected(reason string) func() {
	if rt.metrics == nil {
		return nil
	}
	return func() {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps a domain error kind to its status. Internal failures are not echoed to clients.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		rt.logger.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

const maxJSONBodyBytes = 1 << 20
