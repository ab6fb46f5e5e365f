// Package media serves single catalog entries from the adaptive cache,
// falling back to the catalog on a miss.
package media

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/media-query-api/internal/cache"
	"github.com/media-query-api/internal/catalog"
	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/types"
	"github.com/media-query-api/internal/upstream"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL is the lifetime of entries that are not currently airing.
const DefaultTTL int64 = 86400

const statusReleasing = "RELEASING"

var prettyStatus = map[string]string{
	"NOT_YET_RELEASED": "Not Yet Released",
}

type Orchestrator struct {
	exec       upstream.Executor
	cache      *cache.Cache
	defaultTTL int64
	query      string
	metrics    *metrics.Collector
	logger     *log.Entry
}

func New(exec upstream.Executor, c *cache.Cache, defaultTTL int64, metricsCollector *metrics.Collector, logger *log.Entry) *Orchestrator {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Orchestrator{
		exec:       exec,
		cache:      c,
		defaultTTL: defaultTTL,
		query:      catalog.MustQuery(catalog.QueryMedia),
		metrics:    metricsCollector,
		logger:     logger,
	}
}

// Lookup returns the entry for id, from cache when possible.
func (o *Orchestrator) Lookup(ctx context.Context, id int64, mediaType string) (*types.MediaEntry, error) {
	key := strconv.FormatInt(id, 10)

	var entry types.MediaEntry
	ttl, err := o.cache.GetJSON(ctx, key, &entry)
	switch {
	case err == nil:
		o.metrics.RecordCacheHit()
		o.logger.WithField("media_id", id).Debug("Serving media from cache")
		return fromCache(&entry, ttl), nil
	case errors.Is(err, cache.ErrMiss):
		o.metrics.RecordCacheMiss()
		o.logger.WithField("media_id", id).Debug("Media not cached")
	default:
		// Treat a failing cache as a miss.
		o.logger.WithError(err).WithField("media_id", id).Error("Cache read failed, fetching from catalog")
	}

	body, err := o.exec.Execute(ctx, o.query, map[string]interface{}{
		"id":   id,
		"type": strings.ToUpper(mediaType),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch media %d: %w", id, err)
	}

	raw, err := catalog.DecodeMedia(body)
	if err != nil {
		return nil, err
	}
	fresh := Transform(raw)

	ttl = o.TTLFor(fresh)
	// Cache the entry under the id the catalog reports.
	if err := o.cache.PutJSON(ctx, strconv.FormatInt(fresh.ID, 10), fresh, ttl); err != nil {
		o.logger.WithError(err).WithField("media_id", fresh.ID).Error("Failed to cache media")
	} else {
		o.logger.WithFields(log.Fields{
			"media_id": fresh.ID,
			"romaji":   fresh.Romaji,
			"ttl":      ttl,
			"airing":   fresh.IsAiring(),
		}).Debug("Cached media")
	}
	return fresh, nil
}

// Expire drops the cached entry for id, if any.
func (o *Orchestrator) Expire(ctx context.Context, id int64) error {
	if err := o.cache.Delete(ctx, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("expire media %d: %w", id, err)
	}
	o.logger.WithField("media_id", id).Info("Media cache entry expired")
	return nil
}

// TTLFor is the cache lifetime of entry: the countdown to the next
// episode while airing, the default lifetime otherwise.
func (o *Orchestrator) TTLFor(entry *types.MediaEntry) int64 {
	return ExpiryFor(entry, o.defaultTTL)
}

// ExpiryFor applies the airing rule with an explicit fallback lifetime.
func ExpiryFor(entry *types.MediaEntry, fallback int64) int64 {
	if !entry.IsAiring() {
		return fallback
	}
	if t := entry.Airing[0].TimeUntilAiring; t > 0 {
		return t
	}
	return 0
}

// fromCache stamps a cached entry with its remaining lifetime. Only the
// first airing event is corrected; later countdowns are as stored.
func fromCache(entry *types.MediaEntry, ttl int64) *types.MediaEntry {
	entry.DataFrom = types.FromCache
	if ttl == cache.NoExpiry {
		return entry
	}
	if entry.IsAiring() {
		entry.Airing[0].TimeUntilAiring = ttl
	}
	left := ttl
	entry.LeftUntilExpire = &left
	return entry
}

// Transform maps a catalog payload onto the stored shape.
func Transform(m *catalog.Media) *types.MediaEntry {
	status := m.Status
	if pretty, ok := prettyStatus[status]; ok {
		status = pretty
	}

	airing := []types.AiringEvent{}
	if m.Status == statusReleasing {
		airing = append(airing, m.AiringSchedule.Nodes...)
	}

	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}

	return &types.MediaEntry{
		ID:           m.ID,
		Romaji:       catalog.Deref(m.Title.Romaji),
		Airing:       airing,
		AverageScore: m.AverageScore,
		MeanScore:    m.MeanScore,
		Banner:       m.BannerImage,
		Cover:        m.CoverImage,
		Duration:     m.Duration,
		Episodes:     m.Episodes,
		Chapters:     m.Chapters,
		Volumes:      m.Volumes,
		Format:       m.Format,
		Genres:       genres,
		Popularity:   m.Popularity,
		Favourites:   m.Favourites,
		Status:       status,
		URL:          m.SiteURL,
		EndDate:      m.EndDate.String(),
		StartDate:    m.StartDate.String(),
		DataFrom:     types.FromAPI,
	}
}
