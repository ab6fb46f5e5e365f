package main

import (
	"fmt"

	"github.com/media-query-api/internal/cache"
	"github.com/media-query-api/internal/config"
	"github.com/media-query-api/internal/media"
	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/proxypool"
	"github.com/media-query-api/internal/recommend"
	"github.com/media-query-api/internal/refresher"
	"github.com/media-query-api/internal/relations"
	"github.com/media-query-api/internal/relevance"
	"github.com/media-query-api/internal/similarity"
	"github.com/media-query-api/internal/storage"
	"github.com/media-query-api/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// app owns every long-lived collaborator of the process.
type app struct {
	cfg       *config.Config
	store     storage.Storage
	metrics   *metrics.Collector
	pool      *proxypool.Pool
	media     *media.Orchestrator
	relations *relations.Service
	recommend *recommend.Sampler
	refresher *refresher.Refresher
}

func component(name string) *log.Entry {
	return log.WithField("component", name)
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	var metricsCollector *metrics.Collector
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)
	}

	pool := proxypool.New(store, cfg.Storage.ProxySetKey, metricsCollector, component("proxypool"))

	var exec upstream.Executor = upstream.NewFetcher(pool, cfg.Upstream.Endpoint, cfg.Upstream.ProxyScheme, metricsCollector, component("upstream"))
	exec = upstream.NewRetrying(exec, cfg.Upstream.MaxAttempts, cfg.Upstream.RetryInterval, component("upstream"))

	mediaCache := cache.New(store, cfg.Storage.CachePrefix)
	ranker := relevance.NewRanker(similarity.NewScorer())

	return &app{
		cfg:       cfg,
		store:     store,
		metrics:   metricsCollector,
		pool:      pool,
		media:     media.New(exec, mediaCache, cfg.Cache.DefaultTTLSeconds, metricsCollector, component("media")),
		relations: relations.New(exec, ranker, component("relations")),
		recommend: recommend.New(exec, cfg.Recommend.PerPage, metricsCollector, component("recommend")),
		refresher: refresher.New(cfg.Refresher, pool, metricsCollector, component("refresher")),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.WithError(err).Error("Failed to close storage")
	}
}
