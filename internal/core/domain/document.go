package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether processing has finished for the document, successfully or not.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewReviewed  ReviewStatus = "reviewed"
	ReviewCompleted ReviewStatus = "completed"
)

func ParseReviewStatus(raw string) (ReviewStatus, bool) {
	switch ReviewStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case ReviewPending:
		return ReviewPending, true
	case ReviewReviewed:
		return ReviewReviewed, true
	case ReviewCompleted:
		return ReviewCompleted, true
	default:
		return "", false
	}
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

const CategoryOther = "Other"

type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type"`
	FileType     string         `json:"file_type"`
	SizeBytes    int64          `json:"size_bytes"`
	Pages        int            `json:"pages"`
	StoragePath  string         `json:"storage_path"`
	Category     string         `json:"category,omitempty"`
	Tags         []string       `json:"tags"`
	Summary      string         `json:"summary,omitempty"`
	RiskLevel    Severity       `json:"risk_level"`
	Priority     Priority       `json:"priority"`
	Status       DocumentStatus `json:"status"`
	ReviewStatus ReviewStatus   `json:"review_status"`
	Stage        Stage          `json:"stage,omitempty"`
	Progress     int            `json:"progress"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Analysis is the outcome of running the rulebook over a document's text.
type Analysis struct {
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Summary   string    `json:"summary"`
	RiskLevel Severity  `json:"risk_level"`
	Priority  Priority  `json:"priority"`
	Findings  []Finding `json:"findings"`
}

type DocumentDetail struct {
	Document        Document          `json:"document"`
	Risks           []Finding         `json:"risks"`
	Opportunities   []Finding         `json:"opportunities"`
	Inconsistencies []Finding         `json:"inconsistencies"`
	Related         []RelatedDocument `json:"related"`
}

type RelatedDocument struct {
	DocumentID  string   `json:"document_id"`
	Filename    string   `json:"filename"`
	SharedRules []string `json:"shared_rules"`
}

type DocumentListFilter struct {
	Status       DocumentStatus
	ReviewStatus ReviewStatus
	RiskLevel    Severity
	Category     string
	Limit        int
	Offset       int
}

var supportedFileTypes = map[string]string{
	".pdf":  "PDF",
	".doc":  "DOC",
	".docx": "DOCX",
	".xls":  "XLS",
	".xlsx": "XLSX",
	".txt":  "TXT",
	".md":   "MD",
	".html": "HTML",
	".htm":  "HTML",
	".csv":  "CSV",
}

// FileTypeOf maps a filename to its upper-case file type label, or "" when unsupported.
func FileTypeOf(filename string) string {
	return supportedFileTypes[strings.ToLower(filepath.Ext(filename))]
}

// PriorityFor derives review priority from a document's risk level.
func PriorityFor(level Severity) Priority {
	switch level {
	case SeverityCritical, SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
