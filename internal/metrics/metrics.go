package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the service's Prometheus instruments. A nil *Collector
// is valid and records nothing.
type Collector struct {
	// Cache metrics
	cacheLookups *prometheus.CounterVec

	// Upstream metrics
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram

	// Proxy pool metrics
	proxyEvictions prometheus.Counter
	poolSize       prometheus.Gauge
	proxiesScraped *prometheus.CounterVec
	proxiesAdded   prometheus.Counter

	recommendFallbacks prometheus.Counter

	// API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewCollector registers all instruments on reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Media cache lookups by result",
			},
			[]string{"result"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Catalog requests by HTTP status (\"error\" for transport failures)",
			},
			[]string{"status"},
		),
		upstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Catalog request duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		proxyEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_evictions_total",
				Help:      "Proxies removed from the pool after a 403",
			},
		),
		poolSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "proxy_pool_size",
				Help:      "Last observed number of proxies in the pool",
			},
		),
		proxiesScraped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxies_scraped_total",
				Help:      "Total number of proxies scraped from sources",
			},
			[]string{"source"},
		),
		proxiesAdded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxies_added_total",
				Help:      "Proxies newly added to the pool by the refresher",
			},
		),
		recommendFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommend_fallbacks_total",
				Help:      "Recommendation draws that fell back to page 1",
			},
		),
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collector) RecordUpstreamRequest(status string, seconds float64) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(status).Inc()
	c.upstreamDuration.Observe(seconds)
}

func (c *Collector) RecordProxyEviction() {
	if c == nil {
		return
	}
	c.proxyEvictions.Inc()
}

func (c *Collector) SetPoolSize(n int64) {
	if c == nil {
		return
	}
	c.poolSize.Set(float64(n))
}

func (c *Collector) RecordProxiesScraped(source string, count int) {
	if c == nil {
		return
	}
	c.proxiesScraped.WithLabelValues(source).Add(float64(count))
}

func (c *Collector) RecordProxiesAdded(count int64) {
	if c == nil {
		return
	}
	c.proxiesAdded.Add(float64(count))
}

func (c *Collector) RecordRecommendFallback() {
	if c == nil {
		return
	}
	c.recommendFallbacks.Inc()
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	if c == nil {
		return
	}
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
