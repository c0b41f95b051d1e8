package routes

import (
	"net/http"

	"pairchat/internal/config"
	"pairchat/internal/handlers"
	"pairchat/internal/middleware"
	"pairchat/internal/utils"
	"pairchat/pkg/database"

	"github.com/gin-gonic/gin"
)

// Setup wires all HTTP and WebSocket routes
func Setup(router *gin.Engine, cfg *config.Config, authHandler *handlers.AuthHandler, chatHandler *handlers.ChatHandler) {
	router.Use(middleware.CORS(cfg.Server.CORS))
	router.Use(middleware.RateLimit(cfg.Server.RateLimit))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"app":     cfg.App.Name,
			"version": cfg.App.Version,
			"mongodb": database.HealthCheck(),
		})
	})

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/google", authHandler.Google)
			auth.POST("/logout", middleware.SessionAuth(cfg.JWT), authHandler.Logout)
			auth.GET("/me", middleware.SessionAuth(cfg.JWT), authHandler.Me)
		}

		authed := api.Group("", middleware.SessionAuth(cfg.JWT))
		{
			authed.GET("/ws", chatHandler.Connect)
			authed.GET("/presence/:uid", chatHandler.Presence)
			authed.GET("/stats", chatHandler.Stats)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		utils.ErrorResponse(c, http.StatusNotFound, "Route not found")
	})
}
