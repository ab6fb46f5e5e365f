package refresher

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// FastConnectFilter keeps the proxies that accept a TCP connection within
// timeout. At most concurrency dials run at once.
func FastConnectFilter(ctx context.Context, proxies []string, timeout time.Duration, concurrency int, logger *log.Entry) []string {
	if len(proxies) == 0 {
		return proxies
	}
	if concurrency < 1 {
		concurrency = 1
	}

	start := time.Now()
	dialer := &net.Dialer{Timeout: timeout}

	connectable := make([]string, 0, len(proxies)/5)
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, p := range proxies {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)

		go func(addr string) {
			defer wg.Done()
			defer func() { <-sem }()

			conn, err := dialer.DialContext(ctx, "tcp", dialAddress(addr))
			if err != nil {
				return
			}
			conn.Close()

			mu.Lock()
			connectable = append(connectable, addr)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	logger.WithFields(log.Fields{
		"tested":      len(proxies),
		"connectable": len(connectable),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Fast filter complete")
	return connectable
}

// dialAddress strips an optional scheme and credentials from a pool entry.
func dialAddress(addr string) string {
	if !strings.Contains(addr, "://") {
		return addr
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return addr
	}
	return u.Host
}
