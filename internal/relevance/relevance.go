// Package relevance ranks catalog search hits against a free-text query.
package relevance

import (
	"sort"
	"strings"

	"github.com/media-query-api/internal/similarity"
	"github.com/media-query-api/internal/types"
)

// Ranker orders relation candidates by their best-matching known name.
type Ranker struct {
	scorer *similarity.Scorer
}

func NewRanker(scorer *similarity.Scorer) *Ranker {
	return &Ranker{scorer: scorer}
}

// Rank annotates every candidate with its similarity and returns them sorted
// by descending similarity. Equal scores keep their input order.
func (r *Ranker) Rank(query string, candidates []types.RelationCandidate) []types.RelationCandidate {
	q := strings.ToLower(query)
	ranked := make([]types.RelationCandidate, len(candidates))
	for i, c := range candidates {
		c.Similarity = r.best(q, c)
		ranked[i] = c
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	return ranked
}

// best folds the title batch and the synonym batch into one maximum.
// Every known name counts the same.
func (r *Ranker) best(query string, c types.RelationCandidate) float64 {
	best := 0.0
	for _, batch := range [][]string{lower(c.Titles()), lower(c.Synonyms)} {
		for _, res := range r.scorer.Score(query, batch) {
			if res.Score > best {
				best = res.Score
			}
		}
	}
	return best
}

func lower(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}
