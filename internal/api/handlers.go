package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/media-query-api/internal/proxypool"
	"github.com/media-query-api/internal/recommend"
	"github.com/media-query-api/internal/types"
	"github.com/media-query-api/internal/upstream"
	log "github.com/sirupsen/logrus"
)

const welcome = "media-query-api: POST /relations, /media, /recommend, /expire-media"

func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, welcome)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleRelations(c *gin.Context) {
	var req types.RelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "No media name or type was included", err)
		return
	}

	relations, err := s.services.Relations.Search(c.Request.Context(), req.MediaName, req.MediaType)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

func (s *Server) handleMedia(c *gin.Context) {
	var req types.MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "No media id or type was included", err)
		return
	}

	entry, err := s.services.Media.Lookup(c.Request.Context(), req.MediaID, req.MediaType)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleRecommend(c *gin.Context) {
	var req types.RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "No media type was included", err)
		return
	}

	id, err := s.services.Recommend.Recommend(c.Request.Context(), req.Media, req.Genres)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, id)
}

func (s *Server) handleExpireMedia(c *gin.Context) {
	var req types.ExpireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "No media id was included", err)
		return
	}

	if err := s.services.Media.Expire(c.Request.Context(), req.MediaID); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) handleProxyStat(c *gin.Context) {
	size, err := s.services.Pool.Size(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"size": size})
}

// handleProxyRefresh starts a refresh cycle in the background.
func (s *Server) handleProxyRefresh(c *gin.Context) {
	if s.services.Refresher == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Proxy refresher is disabled"})
		return
	}

	s.logger.WithField("request_id", c.GetString(requestIDKey)).Info("Manual proxy refresh triggered via API")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := s.services.Refresher.RefreshOnce(ctx); err != nil {
			s.logger.WithError(err).Error("Manual proxy refresh failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Refresh triggered"})
}

func (s *Server) badRequest(c *gin.Context, message string, err error) {
	s.logger.WithError(err).WithField("path", c.FullPath()).Debug("Rejected request body")
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// respondError maps service errors onto the public error contract.
func (s *Server) respondError(c *gin.Context, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"path":       c.FullPath(),
		"request_id": c.GetString(requestIDKey),
	})

	var upErr *upstream.Error
	switch {
	case errors.Is(err, proxypool.ErrPoolEmpty):
		entry.Error("No proxy available for catalog request")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream unavailable"})
	case errors.As(err, &upErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Request returned an error",
			"errorCode": upErr.Status,
		})
	case errors.Is(err, recommend.ErrNoRecommendations):
		entry.Info("No recommendations found")
		c.JSON(http.StatusNotFound, gin.H{"error": "No recommendations found"})
	default:
		entry.Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
