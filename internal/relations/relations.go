// Package relations searches the catalog by free text and ranks the hits.
package relations

import (
	"context"
	"fmt"
	"strings"

	"github.com/media-query-api/internal/catalog"
	"github.com/media-query-api/internal/relevance"
	"github.com/media-query-api/internal/types"
	"github.com/media-query-api/internal/upstream"
	log "github.com/sirupsen/logrus"
)

type Service struct {
	exec   upstream.Executor
	ranker *relevance.Ranker
	query  string
	logger *log.Entry
}

func New(exec upstream.Executor, ranker *relevance.Ranker, logger *log.Entry) *Service {
	return &Service{
		exec:   exec,
		ranker: ranker,
		query:  catalog.MustQuery(catalog.QueryRelations),
		logger: logger,
	}
}

// Search returns every catalog hit for name, most relevant first.
func (s *Service) Search(ctx context.Context, name, mediaType string) ([]types.RelationCandidate, error) {
	body, err := s.exec.Execute(ctx, s.query, map[string]interface{}{
		"search": name,
		"type":   strings.ToUpper(mediaType),
	})
	if err != nil {
		return nil, fmt.Errorf("search relations for %q: %w", name, err)
	}

	hits, err := catalog.DecodeRelations(body)
	if err != nil {
		return nil, err
	}

	candidates := make([]types.RelationCandidate, 0, len(hits))
	for _, m := range hits {
		candidates = append(candidates, toCandidate(m))
	}

	ranked := s.ranker.Rank(name, candidates)
	s.logger.WithFields(log.Fields{
		"query": name,
		"hits":  len(ranked),
	}).Debug("Ranked relations")
	return ranked, nil
}

func toCandidate(m catalog.Media) types.RelationCandidate {
	synonyms := m.Synonyms
	if synonyms == nil {
		synonyms = []string{}
	}
	return types.RelationCandidate{
		ID:       m.ID,
		Romaji:   catalog.Deref(m.Title.Romaji),
		English:  catalog.Deref(m.Title.English),
		Native:   catalog.Deref(m.Title.Native),
		Synonyms: synonyms,
		Type:     m.Type,
		DataFrom: types.FromAPI,
	}
}
