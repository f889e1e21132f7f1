package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	minCandidatePool   = 50
	maxCandidatePool   = 500
	snippetChars       = 240
)

type SearchUseCase struct {
	index ports.SearchIndex
	now   func() time.Time
}

func NewSearchUseCase(index ports.SearchIndex) *SearchUseCase {
	return &SearchUseCase{
		index: index,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SearchUseCase) Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error) {
	text := strings.TrimSpace(query.Text)
	limit, offset, err := normalizePage(query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}
	filter, err := uc.resolveFilter(query.Filter)
	if err != nil {
		return nil, err
	}

	resp := &domain.SearchResponse{
		Query:         text,
		Results:       []domain.SearchResult{},
		ActiveFilters: filter.ActiveCount(),
	}

	if text == "" {
		hits, total, err := uc.index.ListDocuments(ctx, filter, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		for _, hit := range hits {
			resp.Results = append(resp.Results, toSearchResult(hit, 100))
		}
		resp.Total = total
		return resp, nil
	}

	pool := min(max((offset+limit)*4, minCandidatePool), maxCandidatePool)
	hits, err := uc.index.SearchChunks(ctx, text, filter, pool)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	ranked := rerankHits(text, bestHitPerDocument(hits))
	resp.Total = len(ranked)
	if offset >= len(ranked) {
		return resp, nil
	}
	end := min(len(ranked), offset+limit)
	for _, hit := range ranked[offset:end] {
		resp.Results = append(resp.Results, toSearchResult(hit, matchPercent(hit.Score)))
	}
	return resp, nil
}

func (uc *SearchUseCase) Facets(ctx context.Context) (*domain.SearchFacets, error) {
	facets, err := uc.index.Facets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load search facets: %w", err)
	}
	return facets, nil
}

func (uc *SearchUseCase) resolveFilter(filter domain.SearchFilter) (domain.SearchFilter, error) {
	dateRange, ok := domain.ParseDateRange(string(filter.DateRange))
	if !ok {
		return filter, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("unknown date range %q", filter.DateRange))
	}
	filter.DateRange = dateRange
	filter.CreatedAfter = dateRange.Since(uc.now())

	levels := make([]string, 0, len(filter.RiskLevels))
	for _, raw := range filter.RiskLevels {
		level, ok := domain.ParseSeverity(raw)
		if !ok {
			return filter, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("unknown risk level %q", raw))
		}
		levels = append(levels, string(level))
	}
	filter.RiskLevels = levels

	fileTypes := make([]string, 0, len(filter.FileTypes))
	for _, ft := range filter.FileTypes {
		fileTypes = append(fileTypes, strings.ToUpper(strings.TrimSpace(ft)))
	}
	filter.FileTypes = fileTypes
	return filter, nil
}

func normalizePage(limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("offset must be >= 0"))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return limit, offset, nil
}

// bestHitPerDocument keeps the highest scoring chunk of every document.
func bestHitPerDocument(hits []domain.ChunkHit) []domain.ChunkHit {
	best := make(map[string]int, len(hits))
	out := make([]domain.ChunkHit, 0, len(hits))
	for _, hit := range hits {
		i, ok := best[hit.DocumentID]
		if !ok {
			best[hit.DocumentID] = len(out)
			out = append(out, hit)
			continue
		}
		if hit.Score > out[i].Score {
			out[i] = hit
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func matchPercent(score float64) int {
	return int(math.Round(max(0, min(1, score)) * 100))
}

func toSearchResult(hit domain.ChunkHit, match int) domain.SearchResult {
	snippet := hit.Snippet
	if snippet == "" {
		snippet = truncateRunes(strings.Join(strings.Fields(hit.Text), " "), snippetChars)
	}
	tags := hit.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.SearchResult{
		DocumentID: hit.DocumentID,
		Name:       hit.Filename,
		Category:   hit.Category,
		Tags:       tags,
		RiskLevel:  hit.RiskLevel,
		FileType:   hit.FileType,
		SizeBytes:  hit.SizeBytes,
		CreatedAt:  hit.CreatedAt,
		Match:      match,
		Snippet:    snippet,
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
