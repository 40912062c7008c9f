package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/vocabquiz/internal/handlers"
	"github.com/charlesng35/vocabquiz/internal/middleware"
	"github.com/charlesng35/vocabquiz/internal/models"
)

type authRouteDeps struct {
	Handler     *handlers.AuthHandler
	RequireAuth gin.HandlerFunc
}

func registerAuthRoutes(engine *gin.Engine, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/register", deps.Handler.Register)
		auth.POST("/login", deps.Handler.Login)
		auth.POST("/logout", deps.Handler.Logout)
		auth.GET("/validate", deps.Handler.Validate)
		auth.POST("/refresh", deps.Handler.Refresh)
		auth.POST("/verify-email", deps.Handler.VerifyEmail)
		auth.GET("/verify-email", deps.Handler.VerifyEmail)
		auth.POST("/resend-verification", deps.Handler.ResendVerification)
		auth.POST("/forgot-password", deps.Handler.ForgotPassword)
		auth.POST("/reset-password", deps.Handler.ResetPassword)
	}

	protected := auth.Group("")
	protected.Use(deps.RequireAuth)
	{
		protected.GET("/me", deps.Handler.Me)
		protected.POST("/change-password", deps.Handler.ChangePassword)
		protected.POST("/register/admin", middleware.RequireRole(models.RoleAdmin), deps.Handler.RegisterAdmin)
	}
}
