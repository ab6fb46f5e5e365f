// Package recommend picks a random catalog title for a media type and an
// optional genre filter.
//
// Sampling is two-staged: page 1 reveals how many result pages exist, then
// one id is drawn from a random page. The draw favours whichever page the
// filter lands on; it is not uniform over all titles.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/media-query-api/internal/catalog"
	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/upstream"
	log "github.com/sirupsen/logrus"
)

// DefaultPerPage is the page size of both stages.
const DefaultPerPage = 50

// ErrNoRecommendations means neither the random page nor page 1 held an id.
var ErrNoRecommendations = errors.New("no recommendations found")

type Sampler struct {
	exec        upstream.Executor
	perPage     int
	amountQuery string
	pageQuery   string
	int64N      func(n int64) int64
	metrics     *metrics.Collector
	logger      *log.Entry
}

func New(exec upstream.Executor, perPage int, metricsCollector *metrics.Collector, logger *log.Entry) *Sampler {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Sampler{
		exec:        exec,
		perPage:     perPage,
		amountQuery: catalog.MustQuery(catalog.QueryRecommendationAmount),
		pageQuery:   catalog.MustQuery(catalog.QueryRecommendation),
		int64N:      rand.Int64N,
		metrics:     metricsCollector,
		logger:      logger,
	}
}

// WithRand replaces the random source. int64N must return a value in [0, n).
func (s *Sampler) WithRand(int64N func(n int64) int64) *Sampler {
	s.int64N = int64N
	return s
}

// Recommend returns one catalog id of mediaType, restricted to genres when
// any are given.
func (s *Sampler) Recommend(ctx context.Context, mediaType string, genres []string) (int64, error) {
	mediaType = strings.ToUpper(mediaType)
	if genres == nil {
		genres = []string{}
	}

	lastPage, err := s.lastPage(ctx, mediaType)
	if err != nil {
		return 0, err
	}

	// Pages are drawn from [1, lastPage). With a single page the range is
	// empty and page 1 below is the only fetch.
	var ids []int64
	if lastPage > 1 {
		page := 1 + s.int64N(lastPage-1)
		ids, err = s.pageIDs(ctx, mediaType, genres, page)
		if err != nil {
			var upErr *upstream.Error
			if !errors.As(err, &upErr) {
				return 0, err
			}
			s.logger.WithError(err).WithField("page", page).Debug("Random page failed, falling back to page 1")
		}
	}

	if len(ids) == 0 {
		s.metrics.RecordRecommendFallback()
		s.logger.WithField("last_page", lastPage).Debug("No ids on random page, retrying page 1")
		ids, err = s.pageIDs(ctx, mediaType, genres, 1)
		if err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, ErrNoRecommendations
		}
	}

	return ids[s.int64N(int64(len(ids)))], nil
}

// lastPage reads the page count of the unfiltered listing. Missing or
// unreadable pagination counts as a single page.
func (s *Sampler) lastPage(ctx context.Context, mediaType string) (int64, error) {
	body, err := s.exec.Execute(ctx, s.amountQuery, map[string]interface{}{
		"page":    1,
		"perPage": s.perPage,
		"type":    mediaType,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch page count: %w", err)
	}

	lastPage, _, err := catalog.DecodePage(body)
	if err != nil {
		s.logger.WithError(err).Warn("Unreadable page count, assuming one page")
	}
	s.logger.WithField("last_page", lastPage).Debug("Discovered page count")
	return lastPage, nil
}

func (s *Sampler) pageIDs(ctx context.Context, mediaType string, genres []string, page int64) ([]int64, error) {
	body, err := s.exec.Execute(ctx, s.pageQuery, map[string]interface{}{
		"type":    mediaType,
		"genres":  genres,
		"page":    page,
		"perPage": s.perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch recommendation page %d: %w", page, err)
	}

	_, ids, err := catalog.DecodePage(body)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
