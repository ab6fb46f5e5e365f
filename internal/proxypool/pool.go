// Package proxypool hands out forward proxies from a shared, durable set.
//
// Draws are not leases: concurrent callers may receive the same proxy.
// Eviction is permanent and idempotent. Refilling is the refresher's job.
package proxypool

import (
	"context"
	"errors"
	"fmt"

	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/storage"
	log "github.com/sirupsen/logrus"
)

// ErrPoolEmpty means no proxy is available to route a request through.
var ErrPoolEmpty = errors.New("proxy pool is empty")

type Pool struct {
	set     storage.Set
	key     string
	metrics *metrics.Collector
	logger  *log.Entry
}

func New(set storage.Set, key string, metricsCollector *metrics.Collector, logger *log.Entry) *Pool {
	return &Pool{
		set:     set,
		key:     key,
		metrics: metricsCollector,
		logger:  logger,
	}
}

// Draw picks a proxy address uniformly at random from current membership.
func (p *Pool) Draw(ctx context.Context) (string, error) {
	addr, err := p.set.RandomMember(ctx, p.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrPoolEmpty
		}
		return "", fmt.Errorf("draw proxy: %w", err)
	}
	return addr, nil
}

// Evict removes addr from the pool for good. Evicting an address that is
// not a member succeeds.
func (p *Pool) Evict(ctx context.Context, addr string) error {
	if err := p.set.RemoveMember(ctx, p.key, addr); err != nil {
		return fmt.Errorf("evict proxy %s: %w", addr, err)
	}
	p.metrics.RecordProxyEviction()
	p.logger.WithField("proxy", addr).Warn("Proxy evicted from pool")
	return nil
}

// Add inserts addresses and returns how many were new.
func (p *Pool) Add(ctx context.Context, addrs ...string) (int64, error) {
	added, err := p.set.AddMembers(ctx, p.key, addrs...)
	if err != nil {
		return 0, fmt.Errorf("add proxies: %w", err)
	}
	return added, nil
}

// Size reports current membership and refreshes the pool size gauge.
func (p *Pool) Size(ctx context.Context) (int64, error) {
	n, err := p.set.Cardinality(ctx, p.key)
	if err != nil {
		return 0, fmt.Errorf("pool size: %w", err)
	}
	p.metrics.SetPoolSize(n)
	return n, nil
}
