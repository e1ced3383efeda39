package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// cacheStats handles GET /v1/cache/stats.
func (s *Server) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

// invalidateCache handles DELETE /v1/cache/:tech/:key.
func (s *Server) invalidateCache(c *gin.Context) {
	deleted, err := s.cache.Invalidate(c.Request.Context(), c.Param("tech"), c.Param("key"))
	if err != nil {
		s.respondInternal(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, errorBody("not_found", "cache entry not found", c.GetString("request_id")))
		return
	}
	c.Status(http.StatusNoContent)
}
