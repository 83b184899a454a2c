package approuters

import (
	"github.com/gin-gonic/gin"

	"Parley/internal/configuration"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorGroup := router.Group("/py/api/monitor")
	{
		// GET /py/api/monitor/stats - Get hub statistics
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)

		// GET /py/api/monitor/health - Backend reachability probe
		monitorGroup.GET("/health", container.MonitorHandler.GetHealth)
	}
}
