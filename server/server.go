// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/llmcore/cache"
	"github.com/aschepis/backscratcher/llmcore/orchestrator"
	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Requester runs LLM requests.
type Requester interface {
	LLMRequest(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// QuotaService reads and extends user quota.
type QuotaService interface {
	State(ctx context.Context, userID, resource string) (quota.State, error)
	Grant(ctx context.Context, grant quota.Grant) (int64, error)
}

// CacheService administers the response cache.
type CacheService interface {
	Invalidate(ctx context.Context, techID, cacheKey string) (bool, error)
	Stats() cache.Stats
}

// Server is the HTTP front end of llmcored.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	requester  Requester
	quota      QuotaService
	cache      CacheService
	logger     zerolog.Logger

	startedAt time.Time
}

// Config holds server configuration options.
type Config struct {
	Logger zerolog.Logger
}

// New creates a server. quota and cache may be nil, in which case their
// routes are not registered.
func New(cfg Config, requester Requester, quotaSvc QuotaService, cacheSvc CacheService) *Server {
	s := &Server{
		requester: requester,
		quota:     quotaSvc,
		cache:     cacheSvc,
		logger:    cfg.Logger.With().Str("component", "http-server").Logger(),
		startedAt: time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), s.loggingMiddleware())

	engine.GET("/health", s.health)
	v1 := engine.Group("/v1")
	v1.POST("/llm-request", s.llmRequest)
	if s.quota != nil {
		v1.GET("/quota/:user/:resource", s.getQuota)
		v1.POST("/quota/:user/:resource/grants", s.grantQuota)
	}
	if s.cache != nil {
		v1.GET("/cache/stats", s.cacheStats)
		v1.DELETE("/cache/:tech/:key", s.invalidateCache)
	}

	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve starts the server on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting HTTP server")
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeTCP starts the server on a TCP address.
func (s *Server) ServeTCP(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("Gracefully stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// requestIDMiddleware tags every request with a short unique ID.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = "req_" + uuid.New().String()[:8]
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// loggingMiddleware logs completed requests.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := s.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	}
}

func errorBody(errType, message, requestID string) gin.H {
	return gin.H{
		"error": gin.H{
			"type":       errType,
			"message":    message,
			"request_id": requestID,
		},
	}
}

// respondInternal hides the cause of a failure from the client.
func (s *Server) respondInternal(c *gin.Context, err error) {
	requestID := c.GetString("request_id")
	s.logger.Error().Err(err).Str("request_id", requestID).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, errorBody("internal_error", "Something went wrong, please retry.", requestID))
}

func (s *Server) respondInvalid(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody("invalid_request", message, c.GetString("request_id")))
}
