package main

import (
	"log"

	"trackline/config"
	"trackline/handlers"
	"trackline/middleware"
	"trackline/models"
	"trackline/routes"
	"trackline/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.SongPackage{},
		&models.Session{},
		&models.Player{},
		&models.Song{},
		&models.Playlist{},
		&models.CurrentSong{},
		&models.UsedSong{},
		&models.TimelineEntry{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	packageService := services.NewPackageService(db)
	spotifyService := services.NewSpotifyService(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	ledger := services.NewUsageLedger(db)
	selectionService := services.NewSelectionService(db, ledger)
	gameService := services.NewGameService(db, redisClient, selectionService, ledger, spotifyService, cfg.DefaultMaxSongs)

	// Initialize WebSocket hub
	hub := services.NewHub(gameService)
	go hub.Run()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	packageHandler := handlers.NewPackageHandler(packageService)
	sessionHandler := handlers.NewSessionHandler(gameService)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, packageHandler, sessionHandler, hub, gameService, authService)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
