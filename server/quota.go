package server

import (
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/gin-gonic/gin"
)

type grantBody struct {
	Amount   float64   `json:"amount"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// quotaResponse adds the derived remaining amount to a quota state.
type quotaResponse struct {
	quota.State
	Remaining float64 `json:"remaining"`
}

// getQuota handles GET /v1/quota/:user/:resource.
func (s *Server) getQuota(c *gin.Context) {
	state, err := s.quota.State(c.Request.Context(), c.Param("user"), c.Param("resource"))
	if err != nil {
		s.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, quotaResponse{State: state, Remaining: state.Remaining()})
}

// grantQuota handles POST /v1/quota/:user/:resource/grants.
func (s *Server) grantQuota(c *gin.Context) {
	var body grantBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondInvalid(c, "Failed to parse request body: "+err.Error())
		return
	}
	if body.Amount <= 0 {
		s.respondInvalid(c, "amount must be positive")
		return
	}
	if body.StartsAt.IsZero() {
		body.StartsAt = time.Now()
	}
	if !body.EndsAt.After(body.StartsAt) {
		s.respondInvalid(c, "ends_at must be after starts_at")
		return
	}

	id, err := s.quota.Grant(c.Request.Context(), quota.Grant{
		UserID:   c.Param("user"),
		Resource: c.Param("resource"),
		Amount:   body.Amount,
		StartsAt: body.StartsAt,
		EndsAt:   body.EndsAt,
	})
	if err != nil {
		s.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}
