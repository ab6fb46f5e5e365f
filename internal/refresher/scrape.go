package refresher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/media-query-api/internal/config"
	"github.com/media-query-api/internal/metrics"
	log "github.com/sirupsen/logrus"
)

const (
	SourceText = "text"
	SourceHTML = "html"
)

var (
	// Matches IP:PORT with an optional scheme, e.g. socks5://1.2.3.4:1080
	proxyRegex = regexp.MustCompile(`(?:(socks5|https?)://)?(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d{2,5})`)
	ipRegex    = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// Scraper pulls proxy lists from the configured sources.
type Scraper struct {
	sources   []config.Source
	userAgent string
	client    *http.Client
	metrics   *metrics.Collector
	logger    *log.Entry
}

func NewScraper(sources []config.Source, userAgent string, metricsCollector *metrics.Collector, logger *log.Entry) *Scraper {
	return &Scraper{
		sources:   sources,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: metricsCollector,
		logger:  logger,
	}
}

// Scrape fetches every enabled source concurrently and returns the
// deduplicated addresses. A failing source is logged and skipped.
func (s *Scraper) Scrape(ctx context.Context) ([]string, error) {
	enabled := make([]config.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no enabled sources")
	}

	var wg sync.WaitGroup
	results := make(chan []string, len(enabled))

	for _, src := range enabled {
		wg.Add(1)
		go func(src config.Source) {
			defer wg.Done()

			start := time.Now()
			found, err := s.fetchSource(ctx, src)
			entry := s.logger.WithFields(log.Fields{
				"source":      src.URL,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if err != nil {
				entry.WithError(err).Warn("Proxy source failed")
			} else {
				entry.WithField("count", len(found)).Info("Proxy source fetched")
			}
			s.metrics.RecordProxiesScraped(src.URL, len(found))
			results <- found
		}(src)
	}

	wg.Wait()
	close(results)

	var all []string
	for found := range results {
		all = append(all, found...)
	}
	unique := dedupe(all)
	s.logger.Infof("Deduplicated: %d -> %d unique proxies", len(all), len(unique))
	return unique, nil
}

func (s *Scraper) fetchSource(ctx context.Context, src config.Source) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, 10*1024*1024)
	if src.Type == SourceHTML {
		return parseHTML(body)
	}
	return parseText(body)
}

// parseText reads one proxy per line. Blank lines and # comments are skipped.
func parseText(r io.Reader) ([]string, error) {
	proxies := make([]string, 0)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if addr, ok := extract(line); ok {
			proxies = append(proxies, addr)
		}
	}
	if err := scanner.Err(); err != nil {
		return proxies, fmt.Errorf("scan: %w", err)
	}
	return proxies, nil
}

// parseHTML reads proxy tables whose first two cells are IP and port.
// Rows that carry a full address in any single cell are accepted too.
func parseHTML(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	proxies := make([]string, 0)
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}

		ip := strings.TrimSpace(cells.Eq(0).Text())
		port := strings.TrimSpace(cells.Eq(1).Text())
		if ipRegex.MatchString(ip) {
			if n, err := strconv.Atoi(port); err == nil && n > 0 && n < 65536 {
				proxies = append(proxies, ip+":"+port)
				return
			}
		}

		cells.EachWithBreak(func(_ int, cell *goquery.Selection) bool {
			if addr, ok := extract(cell.Text()); ok {
				proxies = append(proxies, addr)
				return false
			}
			return true
		})
	})
	return proxies, nil
}

func extract(text string) (string, bool) {
	m := proxyRegex.FindStringSubmatch(text)
	if len(m) < 4 {
		return "", false
	}
	port, err := strconv.Atoi(m[3])
	if err != nil || port > 65535 {
		return "", false
	}
	addr := m[2] + ":" + m[3]
	if m[1] != "" {
		addr = m[1] + "://" + addr
	}
	return addr, true
}

func dedupe(proxies []string) []string {
	seen := make(map[string]struct{}, len(proxies))
	unique := make([]string, 0, len(proxies))
	for _, p := range proxies {
		key := strings.ToLower(strings.TrimSpace(p))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}
