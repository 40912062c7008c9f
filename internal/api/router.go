package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/app"
	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/handlers"
	"github.com/charlesng35/vocabquiz/internal/middleware"
)

// Deps lists what the router needs to serve the API.
type Deps struct {
	DB      *gorm.DB
	Config  *app.Config
	Auth    *iauth.Service
	Cookies iauth.CookiePolicy
	// RateStore backs the HTTP rate limiter; nil selects an in-memory store.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, errors.New("router: database handle must be provided")
	}
	if deps.Auth == nil {
		return nil, errors.New("router: auth service must be provided")
	}
	if deps.Config == nil {
		return nil, errors.New("router: config must be provided")
	}
	cfg := deps.Config

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF())
	}
	r.Use(middleware.RateLimit(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerHealthRoutes(r, deps.DB, cfg.Monitoring)

	requireAuth := middleware.Authenticate(deps.Auth, deps.Cookies)

	registerAuthRoutes(r, authRouteDeps{
		Handler:     handlers.NewAuthHandler(deps.Auth, deps.Cookies),
		RequireAuth: requireAuth,
	})
	registerSetupRoutes(r, handlers.NewSetupHandler(deps.Auth, deps.Cookies))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
