package domain

import (
	"strings"
	"time"
)

type DateRange string

const (
	DateRangeAll     DateRange = "all"
	DateRangeToday   DateRange = "today"
	DateRangeWeek    DateRange = "week"
	DateRangeMonth   DateRange = "month"
	DateRangeQuarter DateRange = "quarter"
	DateRangeYear    DateRange = "year"
)

func ParseDateRange(raw string) (DateRange, bool) {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return DateRangeAll, true
	case DateRangeAll, DateRangeToday, DateRangeWeek, DateRangeMonth, DateRangeQuarter, DateRangeYear:
		return r, true
	default:
		return "", false
	}
}

// Since returns the lower creation bound for the range relative to now; zero for "all".
func (r DateRange) Since(now time.Time) time.Time {
	switch r {
	case DateRangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case DateRangeWeek:
		return now.AddDate(0, 0, -7)
	case DateRangeMonth:
		return now.AddDate(0, -1, 0)
	case DateRangeQuarter:
		return now.AddDate(0, -3, 0)
	case DateRangeYear:
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}

type SearchFilter struct {
	Categories []string  `json:"categories,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	RiskLevels []string  `json:"risk_levels,omitempty"`
	FileTypes  []string  `json:"file_types,omitempty"`
	DateRange  DateRange `json:"date_range,omitempty"`
	// CreatedAfter is resolved from DateRange by the search use case.
	CreatedAfter time.Time `json:"-"`
}

// ActiveCount is the number of filter selections, counting a bounded date range as one.
func (f SearchFilter) ActiveCount() int {
	n := len(f.Categories) + len(f.Tags) + len(f.RiskLevels) + len(f.FileTypes)
	if f.DateRange != "" && f.DateRange != DateRangeAll {
		n++
	}
	return n
}

type SearchQuery struct {
	Text   string       `json:"query"`
	Filter SearchFilter `json:"filter"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ChunkHit is a lexical match of one chunk, before per-document grouping.
type ChunkHit struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	RiskLevel  Severity  `json:"risk_level"`
	FileType   string    `json:"file_type"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Snippet    string    `json:"snippet"`
	Score      float64   `json:"score"`
}

type SearchResult struct {
	DocumentID string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	RiskLevel  Severity  `json:"risk_level"`
	FileType   string    `json:"file_type"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	Match      int       `json:"match"`
	Snippet    string    `json:"snippet"`
}

type SearchResponse struct {
	Query         string         `json:"query"`
	Results       []SearchResult `json:"results"`
	Total         int            `json:"total"`
	ActiveFilters int            `json:"active_filters"`
}

type SearchFacets struct {
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	RiskLevels []string `json:"risk_levels"`
	FileTypes  []string `json:"file_types"`
}
