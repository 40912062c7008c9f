package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/app"
	"github.com/charlesng35/vocabquiz/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, monitoring app.MonitoringConfig) {
	health := handlers.Health(db)
	r.GET("/health", health)
	r.GET("/api/health", health)

	if !monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}
