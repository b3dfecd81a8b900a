// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mems-service/internal/config"
	"mems-service/internal/handler"
	"mems-service/internal/middleware"
	"mems-service/internal/utils"
)

// Router holds the handlers and wiring for the HTTP surface
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	mirrorHandler    *handler.MirrorHandler
	healthHandler    *handler.HealthHandler
	webSocketHandler *handler.WebSocketHandler
}

// NewRouter creates a new router
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	mirrorHandler *handler.MirrorHandler,
	healthHandler *handler.HealthHandler,
	webSocketHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:           cfg,
		logger:           logger,
		mirrorHandler:    mirrorHandler,
		healthHandler:    healthHandler,
		webSocketHandler: webSocketHandler,
	}
}

// SetupRouter configures the gin engine with middleware and routes
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(utils.NewServiceLogger(r.logger, "http")))
	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.setupHealthRoutes(router)
	r.setupAPIRoutes(router)
	r.setupWebSocketRoutes(router)

	return router
}

// setupHealthRoutes configures health check endpoints
func (r *Router) setupHealthRoutes(router *gin.Engine) {
	health := router.Group("/health")
	{
		health.GET("", r.healthHandler.HealthCheck)
		health.GET("/live", r.healthHandler.LivenessCheck)
		health.GET("/ready", r.healthHandler.ReadinessCheck)
	}
}

// setupAPIRoutes configures the mirror API endpoints
func (r *Router) setupAPIRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		mirror := v1.Group("/mirror")
		{
			mirror.GET("", r.mirrorHandler.GetStatus)
			mirror.POST("/connect", r.mirrorHandler.Connect)
			mirror.PUT("/parameters", r.mirrorHandler.SetParameters)
			mirror.PUT("/position", r.mirrorHandler.SetPosition)
			mirror.POST("/power/on", r.mirrorHandler.PowerOn)
			mirror.POST("/power/off", r.mirrorHandler.PowerOff)
			mirror.POST("/troubleshoot", r.mirrorHandler.Troubleshoot)
			mirror.POST("/shutdown", r.mirrorHandler.Shutdown)
		}

		v1.GET("/ports", r.mirrorHandler.ListPorts)
	}
}

// setupWebSocketRoutes configures WebSocket endpoints
func (r *Router) setupWebSocketRoutes(router *gin.Engine) {
	ws := router.Group("/ws")
	{
		ws.GET("/events", r.webSocketHandler.HandleEvents)
	}
}
