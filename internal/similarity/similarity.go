// Package similarity scores how close candidate strings are to a query.
package similarity

import (
	"math"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Result pairs a candidate string with its score in [0,1].
type Result struct {
	Candidate string  `json:"candidate"`
	Score     float64 `json:"score"`
}

// Scorer computes a case-insensitive normalized Levenshtein similarity.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	metric *metrics.Levenshtein
}

func NewScorer() *Scorer {
	m := metrics.NewLevenshtein()
	m.CaseSensitive = false
	return &Scorer{metric: m}
}

// Score returns one Result per candidate, in input order.
func (s *Scorer) Score(query string, candidates []string) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{Candidate: c, Score: s.Compare(query, c)}
	}
	return results
}

// Compare scores a single candidate against the query. Case-folded equal
// strings, including two empty ones, score 1.
func (s *Scorer) Compare(query, candidate string) float64 {
	if strings.EqualFold(query, candidate) {
		return 1
	}
	score := strutil.Similarity(query, candidate, s.metric)
	if math.IsNaN(score) {
		return 0
	}
	return score
}
