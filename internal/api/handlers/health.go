package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonalworks/sonata-api/internal/config"
)

// HealthHandler reports service liveness
type HealthHandler struct {
	cfg *config.Config
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	enhancementStatus := "disabled"
	if h.cfg.EnhancementEnabled {
		enhancementStatus = "enabled"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"enhancement": gin.H{
			"status": enhancementStatus,
			"model":  h.cfg.EnhancementModel,
		},
	})
}
