package main

import (
	"log"
	"os"

	"pairchat/internal/config"
	"pairchat/internal/handlers"
	"pairchat/internal/routes"
	"pairchat/internal/services"
	"pairchat/internal/store"
	"pairchat/internal/websocket"
	"pairchat/pkg/database"
	"pairchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg := config.Load()

	// Initialize MongoDB
	if err := database.InitMongoDB(cfg.Database.MongoDB); err != nil {
		logger.Fatal("Failed to initialize MongoDB: " + err.Error())
	}
	defer database.Disconnect()

	// Realtime document store backed by MongoDB
	st := store.NewMongoStore(database.GetDatabase())

	// Optional Redis presence heartbeat
	var presence *services.PresenceService
	if cfg.Database.Redis.Enabled {
		if err := database.InitRedis(cfg.Database.Redis); err != nil {
			logger.Warn("Redis unavailable, presence heartbeat disabled: " + err.Error())
		} else {
			presence = services.NewPresenceService(database.GetRedis(), cfg.Presence)
			defer database.CloseRedis()
		}
	}

	// Services and handlers
	authService := services.NewAuthService(database.GetDatabase(), st)
	authHandler := handlers.NewAuthHandler(authService, st, cfg.JWT)

	// WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	chatHandler := handlers.NewChatHandler(hub, st, presence, cfg)

	// Gin router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	routes.Setup(router, cfg, authHandler, chatHandler)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.HTTP.Port
	}

	logger.Info("Server starting on port: " + port)
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Failed to start server: " + err.Error())
	}
}
