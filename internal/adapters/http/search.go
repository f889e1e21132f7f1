package httpadapter

import (
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	var query domain.SearchQuery
	if err := decodeJSONBody(w, r, &query); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode search request", err))
		return
	}

	start := time.Now()
	resp, err := rt.services.Search.Search(r.Context(), query)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, strings.TrimSpace(query.Text) == "", resp.Total, time.Since(start))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) getSearchFacets(w http.ResponseWriter, r *http.Request) {
	facets, err := rt.services.Search.Facets(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, facets)
}

func (rt *Router) getDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.services.Dashboard.Summary(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) getInsights(w http.ResponseWriter, r *http.Request) {
	var period string
	if err := bindQuery(r.URL.Query(), "period", &period); err != nil {
		rt.writeError(w, r, err)
		return
	}
	insights, err := rt.services.Insights.Insights(r.Context(), domain.DateRange(strings.ToLower(strings.TrimSpace(period))))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}
