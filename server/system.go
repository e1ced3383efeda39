package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"started_at": s.startedAt.UTC().Format(time.RFC3339),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}
