// Health HTTP handlers.
//
// This file exposes liveness and dependency probes:
//   - GET /health       (process liveness)
//   - GET /health/db    (database reachability)
//   - GET /health/llm   (per-backend LLM reachability)
//
// Dependency probes report 503 when the dependency is down so they can back
// load balancer checks directly.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LLMHealthChecker reports per-backend health.
type LLMHealthChecker interface {
	HealthCheck(ctx context.Context) map[string]bool
}

// HealthHandlers groups the health endpoints and their dependencies.
type HealthHandlers struct {
	DB  *gorm.DB
	LLM LLMHealthChecker
}

// Live godoc
// @ID          healthLive
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /health [get]
func (h *HealthHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DBHealth godoc
// @ID          healthDB
// @Summary     Database health probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Failure     503  {object}  map[string]string
// @Router      /health/db [get]
func (h *HealthHandlers) DBHealth(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LLMHealth godoc
// @ID          healthLLM
// @Summary     LLM backend health probe
// @Description Probes every configured backend; 503 when none is reachable.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  map[string]bool
// @Failure     503  {object}  map[string]bool
// @Router      /health/llm [get]
func (h *HealthHandlers) LLMHealth(c *gin.Context) {
	report := h.LLM.HealthCheck(c.Request.Context())
	status := http.StatusServiceUnavailable
	for _, healthy := range report {
		if healthy {
			status = http.StatusOK
			break
		}
	}
	c.JSON(status, report)
}
