package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func TestSearchGroupsByDocumentAndRanks(t *testing.T) {
	index := &indexFake{hits: []domain.ChunkHit{
		{DocumentID: "doc-1", Filename: "supply_contract.pdf", ChunkIndex: 0, Text: "penalty clause of 15%", Score: 0.8, Snippet: "<b>penalty</b> clause"},
		{DocumentID: "doc-1", Filename: "supply_contract.pdf", ChunkIndex: 3, Text: "penalty again", Score: 0.2},
		{DocumentID: "doc-2", Filename: "report.pdf", ChunkIndex: 1, Text: "quarterly revenue", Score: 0.1},
	}}
	uc := NewSearchUseCase(index)

	resp, err := uc.Search(context.Background(), domain.SearchQuery{Text: " penalty clause "})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Query != "penalty clause" || index.lastText != "penalty clause" {
		t.Fatalf("expected trimmed query, got %q/%q", resp.Query, index.lastText)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 documents, got total=%d results=%d", resp.Total, len(resp.Results))
	}
	top := resp.Results[0]
	if top.DocumentID != "doc-1" || top.Snippet != "<b>penalty</b> clause" {
		t.Fatalf("unexpected top result: %+v", top)
	}
	if top.Match <= resp.Results[1].Match || top.Match > 100 || resp.Results[1].Match < 0 {
		t.Fatalf("expected ordered matches in [0,100], got %d and %d", top.Match, resp.Results[1].Match)
	}
	if resp.Results[1].Snippet != "quarterly revenue" {
		t.Fatalf("expected snippet fallback to chunk text, got %q", resp.Results[1].Snippet)
	}
	if index.lastLimit != minCandidatePool {
		t.Fatalf("expected candidate pool %d, got %d", minCandidatePool, index.lastLimit)
	}
}

func TestSearchPaginatesAfterRanking(t *testing.T) {
	index := &indexFake{hits: []domain.ChunkHit{
		{DocumentID: "a", Text: "x", Score: 0.9},
		{DocumentID: "b", Text: "x", Score: 0.5},
		{DocumentID: "c", Text: "x", Score: 0.1},
	}}
	uc := NewSearchUseCase(index)

	resp, err := uc.Search(context.Background(), domain.SearchQuery{Text: "x", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Total != 3 || len(resp.Results) != 1 || resp.Results[0].DocumentID != "b" {
		t.Fatalf("expected page with b, got %+v", resp)
	}

	resp, err = uc.Search(context.Background(), domain.SearchQuery{Text: "x", Limit: 5, Offset: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 0 || resp.Results == nil {
		t.Fatalf("expected empty non-nil page, got %+v", resp.Results)
	}
}

func TestSearchEmptyQueryListsByRecency(t *testing.T) {
	index := &indexFake{
		listed:    []domain.ChunkHit{{DocumentID: "doc-9", Filename: "new.pdf", Text: "first chunk"}},
		listTotal: 7,
	}
	uc := NewSearchUseCase(index)

	resp, err := uc.Search(context.Background(), domain.SearchQuery{Filter: domain.SearchFilter{Categories: []string{"Contract"}}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if index.searchCalls != 0 {
		t.Fatalf("expected no full-text search for an empty query")
	}
	if resp.Total != 7 || resp.Results[0].Match != 100 || resp.ActiveFilters != 1 {
		t.Fatalf("unexpected browse response: %+v", resp)
	}
}

func TestSearchResolvesFilter(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	index := &indexFake{}
	uc := NewSearchUseCase(index)
	uc.now = func() time.Time { return now }

	_, err := uc.Search(context.Background(), domain.SearchQuery{
		Text: "penalty",
		Filter: domain.SearchFilter{
			RiskLevels: []string{"Critical"},
			FileTypes:  []string{"pdf"},
			DateRange:  domain.DateRangeMonth,
		},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	f := index.lastFilter
	if f.RiskLevels[0] != "critical" || f.FileTypes[0] != "PDF" {
		t.Fatalf("expected normalized filter values, got %+v", f)
	}
	if !f.CreatedAfter.Equal(now.AddDate(0, -1, 0)) {
		t.Fatalf("expected created_after one month back, got %s", f.CreatedAfter)
	}
}

func TestSearchRejectsInvalidFilter(t *testing.T) {
	uc := NewSearchUseCase(&indexFake{})

	cases := []domain.SearchQuery{
		{Text: "x", Filter: domain.SearchFilter{DateRange: "decade"}},
		{Text: "x", Filter: domain.SearchFilter{RiskLevels: []string{"extreme"}}},
		{Text: "x", Offset: -1},
	}
	for _, q := range cases {
		if _, err := uc.Search(context.Background(), q); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", q, err)
		}
	}
}

func TestMatchPercentClamps(t *testing.T) {
	if matchPercent(1.7) != 100 || matchPercent(-0.2) != 0 || matchPercent(0.456) != 46 {
		t.Fatalf("unexpected match percent conversion")
	}
}
