package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lwb-io/authkit/service"
)

// SetupRouter sets up the Gin router for the auth backend.
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService)

	router.GET("/v1/altcha/challenge", handlers.Challenge)

	auth := router.Group("/v1/auth")
	{
		auth.POST("/register", handlers.RegisterIdentity)
		auth.POST("/validate", handlers.ValidateIdentity)
		auth.POST("/revoke", handlers.Revoke)

		pwd := auth.Group("/pwd")
		{
			pwd.POST("/register", handlers.RegisterPassword)
			pwd.POST("/login", handlers.Login)
			pwd.POST("/validate", handlers.ValidateSession)
			pwd.POST("/refresh", handlers.Refresh)
		}
	}

	// Protected routes demonstrating the session middleware.
	api := router.Group("/v1/api")
	api.Use(SessionMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
