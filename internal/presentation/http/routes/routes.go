// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/kadunajudiciary/courtsync-go/internal/application/container"
	"github.com/kadunajudiciary/courtsync-go/internal/presentation/http/handlers"
	"github.com/kadunajudiciary/courtsync-go/internal/presentation/http/middleware"
)

// SetupRoutes configures the diagnostics routes and middleware.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	diagHandlers := handlers.NewDiagnosticsHandlers(container)

	r.GET("/health", diagHandlers.Health)

	diag := r.Group("/api/diagnostics")
	{
		diag.GET("/cache", diagHandlers.CacheStats)
		diag.GET("/channel", diagHandlers.ChannelState)
		diag.GET("/session", diagHandlers.SessionInfo)
		diag.POST("/resync", diagHandlers.TriggerResync)
	}

	return r
}
