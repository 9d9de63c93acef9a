package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/storefront/internal/handlers"
	"github.com/charlesng35/storefront/internal/services"
)

func registerPasswordResetRoutes(engine *gin.Engine, svc *services.PasswordResetService, limit gin.HandlerFunc) {
	handler := handlers.NewPasswordResetHandler(svc)

	password := engine.Group("/api/auth/password")
	{
		password.POST("/forgot", limit, handler.Forgot)
		password.GET("/reset", handler.Validate)
		password.POST("/reset", limit, handler.Reset)
	}
}
