package routes

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"trackline/handlers"
	"trackline/middleware"
	"trackline/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	packageHandler *handlers.PackageHandler,
	sessionHandler *handlers.SessionHandler,
	hub *services.Hub,
	gameService *services.GameService,
	authService *services.AuthService,
) {
	// API routes
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Package management
			packages := protected.Group("/packages")
			{
				packages.POST("", packageHandler.CreatePackage)
				packages.DELETE("/:id", packageHandler.DeletePackage)
			}

			protected.DELETE("/sessions/:id", sessionHandler.DeleteSession)
		}

		// Public package browsing
		api.GET("/packages", packageHandler.ListPackages)
		api.GET("/packages/:id", packageHandler.GetPackageByID)

		// Public session routes
		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/:id", sessionHandler.GetGameState)
			sessions.POST("/:id/join", sessionHandler.JoinSession)
		}
	}

	// WebSocket endpoint for real-time game communication
	router.GET("/ws/:sessionID/:playerID", func(c *gin.Context) {
		sessionID, err := strconv.ParseUint(c.Param("sessionID"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
			return
		}
		playerID, err := strconv.ParseUint(c.Param("playerID"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid player id"})
			return
		}

		playerName, err := validatePlayerAccess(gameService, uint(sessionID), uint(playerID))
		if err != nil {
			log.Printf("Player access validation failed for session %d, player %d: %v", sessionID, playerID, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Player not found in session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for session %d, player %d: %v", sessionID, playerID, err)
			return
		}

		hub.RegisterClient(conn, uint(sessionID), uint(playerID), playerName)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// validatePlayerAccess checks that the player belongs to the session before
// the connection is upgraded, and returns the player's name.
func validatePlayerAccess(gameService *services.GameService, sessionID, playerID uint) (string, error) {
	state, err := gameService.GetGameState(sessionID)
	if err != nil {
		return "", fmt.Errorf("session not found: %w", err)
	}

	for _, player := range state.Players {
		if player.ID == playerID {
			return player.Name, nil
		}
	}

	return "", fmt.Errorf("player %d not found in session %d", playerID, sessionID)
}
