// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/tinysteps-go/internal/application/container"
	"github.com/AtRiskMedia/tinysteps-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/tinysteps-go/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/tinysteps-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.Use(middleware.CORSMiddleware(config.AllowedOrigins))

	// Initialize handlers
	formHandlers := handlers.NewFormHandlers(container.FormService, container.Logger, container.PerfTracker)
	engagementHandlers := handlers.NewEngagementHandlers(container.EngagementService, container.Broadcaster, container.Logger)
	gatewayHandlers := handlers.NewGatewayHandlers(container.GatewayService, container.Broadcaster, container.Logger, container.PerfTracker)
	authHandlers := handlers.NewAuthHandlers(container.AuthService, container.FormService, container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container.DB, container.Logger)

	api := r.Group("/api/v1")
	{
		api.GET("/health", healthHandlers.GetHealth)

		api.POST("/forms/:kind", formHandlers.PostSubmission)

		engagement := api.Group("/engagement/pages")
		{
			engagement.POST("", engagementHandlers.PostPage)
			engagement.GET("/:id", engagementHandlers.GetPage)
			engagement.POST("/:id/events", engagementHandlers.PostEvent)
			engagement.GET("/:id/stream", engagementHandlers.StreamPage)
			engagement.DELETE("/:id", engagementHandlers.DeletePage)
		}

		api.GET("/notifications/stream", gatewayHandlers.StreamNotifications)

		gateway := api.Group("/gateway")
		{
			gateway.GET("/status", gatewayHandlers.GetStatus)
			gateway.POST("/sync/:tag", gatewayHandlers.PostSync)
		}

		api.POST("/admin/login", authHandlers.PostLogin)
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(container.AuthService))
		{
			admin.GET("/submissions", authHandlers.GetSubmissions)
			admin.GET("/metrics", authHandlers.GetMetrics)
		}
	}

	r.POST("/gateway/forms/:kind", gatewayHandlers.PostForm)

	// Everything else goes through the offline gateway.
	r.NoRoute(gatewayHandlers.ServeGateway)

	return r
}
