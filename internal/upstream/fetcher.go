// Package upstream issues catalog queries through the proxy pool.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/media-query-api/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const maxBodyBytes = 10 * 1024 * 1024

// Error is a non-200 answer from the catalog. Body is kept for diagnostics.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog returned HTTP %d", e.Status)
}

// Executor runs one catalog query and returns the raw JSON response body.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error)
}

// ProxySource is the part of the proxy pool the fetcher needs.
type ProxySource interface {
	Draw(ctx context.Context) (string, error)
	Evict(ctx context.Context, addr string) error
}

// Fetcher performs exactly one attempt per Execute, through a freshly drawn
// proxy and a client that is discarded afterwards. A 403 evicts the proxy.
type Fetcher struct {
	pool     ProxySource
	endpoint string
	scheme   string
	metrics  *metrics.Collector
	logger   *log.Entry
}

func NewFetcher(pool ProxySource, endpoint, proxyScheme string, metricsCollector *metrics.Collector, logger *log.Entry) *Fetcher {
	if proxyScheme == "" {
		proxyScheme = "http"
	}
	return &Fetcher{
		pool:     pool,
		endpoint: endpoint,
		scheme:   proxyScheme,
		metrics:  metricsCollector,
		logger:   logger,
	}
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func (f *Fetcher) Execute(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	addr, err := f.pool.Draw(ctx)
	if err != nil {
		return nil, err
	}

	transport, err := f.transportFor(addr)
	if err != nil {
		return nil, err
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport}

	payload, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		f.metrics.RecordUpstreamRequest("error", time.Since(start).Seconds())
		return nil, &TransportError{Proxy: addr, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	f.metrics.RecordUpstreamRequest(strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, &TransportError{Proxy: addr, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusForbidden {
			if err := f.pool.Evict(ctx, addr); err != nil {
				f.logger.WithError(err).WithField("proxy", addr).Error("Failed to evict banned proxy")
			}
		}
		f.logger.WithFields(log.Fields{
			"status": resp.StatusCode,
			"proxy":  addr,
		}).Error("Catalog request failed")
		return nil, &Error{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// TransportError is a request that never produced an HTTP status.
// The proxy stays in the pool.
type TransportError struct {
	Proxy string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request via proxy %s: %v", e.Proxy, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// transportFor builds a one-shot transport routed through addr. Bare
// host:port entries get the configured scheme.
func (f *Fetcher) transportFor(addr string) (*http.Transport, error) {
	proxyURL, err := ProxyURL(addr, f.scheme)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DisableKeepAlives: true,
	}

	if proxyURL.Scheme == "socks5" {
		var auth *proxy.Auth
		if proxyURL.User != nil {
			pass, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %s: %w", addr, err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, address string) (net.Conn, error) {
				return dialer.Dial(network, address)
			}
		}
		return transport, nil
	}

	transport.Proxy = http.ProxyURL(proxyURL)
	return transport, nil
}

// ProxyURL turns a pool entry into a proxy URL.
func ProxyURL(addr, defaultScheme string) (*url.URL, error) {
	raw := addr
	if !strings.Contains(addr, "://") {
		raw = defaultScheme + "://" + addr
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse proxy address %q: missing host", addr)
	}
	return u, nil
}

// IsForbidden reports whether err is a catalog 403.
func IsForbidden(err error) bool {
	var upErr *Error
	return errors.As(err, &upErr) && upErr.Status == http.StatusForbidden
}
