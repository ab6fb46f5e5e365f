// Package refresher keeps the proxy pool stocked from public proxy lists.
// It only ever adds members; eviction belongs to the fetcher.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/media-query-api/internal/config"
	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/proxypool"
	log "github.com/sirupsen/logrus"
)

// ErrNoProxies means a refresh cycle found nothing to add.
var ErrNoProxies = errors.New("no proxies found")

type Refresher struct {
	cfg     config.RefresherConfig
	scraper *Scraper
	pool    *proxypool.Pool
	metrics *metrics.Collector
	logger  *log.Entry
}

func New(cfg config.RefresherConfig, pool *proxypool.Pool, metricsCollector *metrics.Collector, logger *log.Entry) *Refresher {
	return &Refresher{
		cfg:     cfg,
		scraper: NewScraper(cfg.Sources, cfg.UserAgent, metricsCollector, logger),
		pool:    pool,
		metrics: metricsCollector,
		logger:  logger,
	}
}

// RefreshOnce runs one scrape cycle and returns how many proxies were new.
func (r *Refresher) RefreshOnce(ctx context.Context) (int64, error) {
	start := time.Now()

	proxies, err := r.scraper.Scrape(ctx)
	if err != nil {
		return 0, fmt.Errorf("scrape proxies: %w", err)
	}

	if r.cfg.EnableFastFilter && len(proxies) > 0 {
		timeout := time.Duration(r.cfg.FastFilterTimeoutMs) * time.Millisecond
		proxies = FastConnectFilter(ctx, proxies, timeout, r.cfg.FastFilterConcurrency, r.logger)
	}

	if len(proxies) == 0 {
		return 0, ErrNoProxies
	}

	added, err := r.pool.Add(ctx, proxies...)
	if err != nil {
		return 0, err
	}
	r.metrics.RecordProxiesAdded(added)

	size, err := r.pool.Size(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read pool size")
	}

	r.logger.WithFields(log.Fields{
		"candidates":  len(proxies),
		"added":       added,
		"pool_size":   size,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Refresh cycle complete")
	return added, nil
}

// Warmup retries RefreshOnce until it succeeds, up to StartupAttempts tries
// spaced StartupRetryDelay apart.
func (r *Refresher) Warmup(ctx context.Context) error {
	attempts := r.cfg.StartupAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.StartupRetryDelay), uint64(attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		r.logger.WithError(err).WithField("retry_in", wait.String()).Warn("Initial proxy refresh failed")
	}

	op := func() error {
		_, err := r.RefreshOnce(ctx)
		return err
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("initial proxy refresh: %w", err)
	}
	return nil
}

// Run warms the pool up, then refreshes it every Interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Warmup(ctx); err != nil {
		r.logger.WithError(err).Error("Proxy pool warmup gave up")
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Refresher stopped")
			return
		case <-ticker.C:
			if _, err := r.RefreshOnce(ctx); err != nil {
				r.logger.WithError(err).Error("Refresh cycle failed")
			}
		}
	}
}
