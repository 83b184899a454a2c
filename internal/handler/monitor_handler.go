package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Parley/internal/hub"
)

// MonitorHandler handles monitoring API endpoints
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
	GetHealth(c *gin.Context)
}

type monitorHandler struct {
	monitorService *hub.MonitorService
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(monitorService *hub.MonitorService) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
	}
}

// GetHubStats returns current hub statistics
// @Summary Get WebSocket hub statistics
// @Description Returns connected identities, socket counts, and backend reachability
// @Tags Monitor
// @Produce json
// @Success 200 {object} model.MonitorResponse
// @Router /api/monitor/stats [get]
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	stats := h.monitorService.GetStats(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"HttpStatusCode": http.StatusOK,
		"ResponseBody":   stats,
		"IsSuccess":      true,
		"Message":        "Hub statistics retrieved successfully",
	})
}

// GetHealth reports backend reachability
// @Summary Service health check
// @Description Returns 200 when every backend is reachable, 503 otherwise
// @Tags Monitor
// @Produce json
// @Success 200 {object} model.HealthResponse
// @Failure 503 {object} model.HealthResponse
// @Router /api/monitor/health [get]
func (h *monitorHandler) GetHealth(c *gin.Context) {
	health := h.monitorService.Health(c.Request.Context())

	code := http.StatusOK
	if health.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}
