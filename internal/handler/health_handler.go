// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mems-service/internal/service"
	"mems-service/internal/utils"
)

// HealthHandler reports service and device health
type HealthHandler struct {
	mirrorService *service.MirrorService
	startTime     time.Time
	logger        *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mirrorService *service.MirrorService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		mirrorService: mirrorService,
		startTime:     time.Now(),
		logger:        logger.With(zap.String("component", "health-handler")),
	}
}

// HealthCheck reports overall health. The service is degraded, not down,
// when the mirror driver is disconnected.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := h.mirrorService.Status()

	health := "healthy"
	if !status.Connected {
		health = "degraded"
	}

	utils.SuccessResponse(c, http.StatusOK, "Health check completed", gin.H{
		"status":           health,
		"device_connected": status.Connected,
		"uptime":           time.Since(h.startTime).String(),
		"timestamp":        time.Now(),
	})
}

// LivenessCheck reports whether the process is alive
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Service is alive", gin.H{
		"status": "alive",
	})
}

// ReadinessCheck reports whether the service can accept mirror commands
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	status := h.mirrorService.Status()

	if !status.Connected {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Mirror driver not connected", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Service is ready", gin.H{
		"status": "ready",
		"port":   status.Port,
	})
}
