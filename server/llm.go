package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aschepis/backscratcher/llmcore/orchestrator"
	"github.com/gin-gonic/gin"
)

// llmRequestBody is the JSON body of POST /v1/llm-request.
type llmRequestBody struct {
	orchestrator.Request
	Messages []orchestrator.WireMessage `json:"messages"`
}

// llmRequest handles POST /v1/llm-request.
func (s *Server) llmRequest(c *gin.Context) {
	var body llmRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondInvalid(c, "Failed to parse request body: "+err.Error())
		return
	}
	if body.TechRef == "" {
		s.respondInvalid(c, "tech is required")
		return
	}
	msgs, err := orchestrator.BuildMessages(body.Messages)
	if err != nil {
		s.respondInvalid(c, err.Error())
		return
	}

	req := body.Request
	req.Messages = msgs

	result, err := s.requester.LLMRequest(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nobody is listening for a body.
			c.Status(499)
			return
		}
		s.respondInternal(c, err)
		return
	}

	retryAfterHeader(c, result)
	c.JSON(statusFor(result), result)
}

// statusFor maps a result outcome onto an HTTP status.
func statusFor(result *orchestrator.Result) int {
	switch result.Outcome {
	case orchestrator.OutcomeRateLimited:
		return http.StatusTooManyRequests
	case orchestrator.OutcomeInsufficientQuota:
		return http.StatusPaymentRequired
	case orchestrator.OutcomeSkipped:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func retryAfterHeader(c *gin.Context, result *orchestrator.Result) {
	if result.IsRateLimited && result.WaitSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(result.WaitSeconds))
	}
}
