package domain

import "time"

type TrendImpact string

const (
	ImpactPositive TrendImpact = "positive"
	ImpactNegative TrendImpact = "negative"
	ImpactNeutral  TrendImpact = "neutral"
)

type Trend struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Impact      TrendImpact `json:"impact"`
	Change      float64     `json:"change"`
	Period      string      `json:"period"`
}

type Pattern struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Frequency   float64  `json:"frequency"`
	Documents   []string `json:"documents"`
	Severity    Severity `json:"severity"`
}

type Recommendation struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Priority        Priority `json:"priority"`
	EstimatedImpact string   `json:"estimated_impact"`
	TimeToImplement string   `json:"time_to_implement"`
}

type Alert struct {
	ID         string   `json:"id"`
	Message    string   `json:"message"`
	DocumentID string   `json:"document_id,omitempty"`
	Document   string   `json:"document,omitempty"`
	Severity   Severity `json:"severity"`
	Action     string   `json:"action,omitempty"`
}

type Insights struct {
	Period            DateRange        `json:"period"`
	From              time.Time        `json:"from"`
	To                time.Time        `json:"to"`
	AnalyzedDocuments int              `json:"analyzed_documents"`
	Trends            []Trend          `json:"trends"`
	Patterns          []Pattern        `json:"patterns"`
	Recommendations   []Recommendation `json:"recommendations"`
	Alerts            []Alert          `json:"alerts"`
}

type DashboardStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Critical  int `json:"critical"`
	Processed int `json:"processed"`
}

type DashboardSummary struct {
	Stats           DashboardStats `json:"stats"`
	CriticalAlerts  []Alert        `json:"critical_alerts"`
	RecentDocuments []Document     `json:"recent_documents"`
}
