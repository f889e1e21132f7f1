package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// rerankHits rescores lexical hits by blending the normalized index rank with query token
// overlap and a filename boost. Scores land in [0,1].
func rerankHits(query string, hits []domain.ChunkHit) []domain.ChunkHit {
	if len(hits) == 0 {
		return hits
	}

	out := make([]domain.ChunkHit, len(hits))
	copy(out, hits)
	queryTokens := toTokenSet(query)

	minScore := out[0].Score
	maxScore := out[0].Score
	for _, hit := range out[1:] {
		if hit.Score < minScore {
			minScore = hit.Score
		}
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}

	rangeScore := maxScore - minScore
	normalize := func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}

	for i := range out {
		normalized := normalize(out[i].Score)
		overlap := tokenOverlap(queryTokens, toTokenSet(out[i].Text))
		filenameBoost := filenameTokenHit(queryTokens, out[i].Filename)
		out[i].Score = 0.60*normalized + 0.30*overlap + 0.10*filenameBoost
	}

	sortRanked(out)
	return out
}

// sortRanked orders hits by the match percent clients see, then newest first, then id. Raw
// scores that round to the same match must not decide the order.
func sortRanked(hits []domain.ChunkHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		mi, mj := matchPercent(hits[i].Score), matchPercent(hits[j].Score)
		if mi != mj {
			return mi > mj
		}
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func filenameTokenHit(query map[string]struct{}, filename string) float64 {
	if len(query) == 0 || filename == "" {
		return 0
	}
	filename = strings.ToLower(filename)
	for token := range query {
		if token == "" {
			continue
		}
		if strings.Contains(filename, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
