package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/media-query-api/internal/config"
	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// MediaService serves single catalog entries.
type MediaService interface {
	Lookup(ctx context.Context, id int64, mediaType string) (*types.MediaEntry, error)
	Expire(ctx context.Context, id int64) error
}

// RelationService ranks catalog search hits.
type RelationService interface {
	Search(ctx context.Context, name, mediaType string) ([]types.RelationCandidate, error)
}

// Recommender picks a random catalog id.
type Recommender interface {
	Recommend(ctx context.Context, mediaType string, genres []string) (int64, error)
}

// PoolStats reports proxy pool membership.
type PoolStats interface {
	Size(ctx context.Context) (int64, error)
}

// ProxyRefresher restocks the proxy pool on demand.
type ProxyRefresher interface {
	RefreshOnce(ctx context.Context) (int64, error)
}

// Services are the collaborators behind the HTTP surface. Refresher may be
// nil, in which case manual refreshes are rejected.
type Services struct {
	Media     MediaService
	Relations RelationService
	Recommend Recommender
	Pool      PoolStats
	Refresher ProxyRefresher
}

type Server struct {
	config      *config.Config
	services    Services
	metrics     *metrics.Collector
	logger      *log.Entry
	router      *gin.Engine
	httpServer  *http.Server
	rateLimiter *RateLimiter
}

func NewServer(cfg *config.Config, services Services, metricsCollector *metrics.Collector, logger *log.Entry) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		services:    services,
		metrics:     metricsCollector,
		logger:      logger,
		router:      router,
		rateLimiter: NewRateLimiter(cfg.API.RateLimitPerMinute),
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	s.router.GET("/", s.handleIndex)
	s.router.GET("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	protected := s.router.Group("/")
	if s.config.API.EnableAPIKeyAuth {
		protected.Use(s.authMiddleware())
	}
	if s.config.API.EnableIPRateLimit {
		protected.Use(s.rateLimitMiddleware())
	}

	protected.POST("/relations", s.handleRelations)
	protected.POST("/media", s.handleMedia)
	protected.POST("/recommend", s.handleRecommend)
	protected.POST("/expire-media", s.handleExpireMedia)
	protected.GET("/proxies/stat", s.handleProxyStat)
	protected.POST("/proxies/refresh", s.handleProxyRefresh)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.API.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infof("Starting API server on %s", s.config.API.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
