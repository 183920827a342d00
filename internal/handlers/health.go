package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthCheck handles GET /healthz. It succeeds regardless of upstream
// credential validity so the probe never depends on the CRM gateway.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
