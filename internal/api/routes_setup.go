package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/vocabquiz/internal/handlers"
)

func registerSetupRoutes(engine *gin.Engine, handler *handlers.SetupHandler) {
	setup := engine.Group("/api/setup")
	setup.GET("/status", handler.Status)
	setup.POST("/initialize", handler.Initialize)
}
