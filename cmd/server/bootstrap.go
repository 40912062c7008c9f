package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/vocabquiz/internal/api"
	"github.com/charlesng35/vocabquiz/internal/app"
	"github.com/charlesng35/vocabquiz/internal/app/maintenance"
	iauth "github.com/charlesng35/vocabquiz/internal/auth"
	"github.com/charlesng35/vocabquiz/internal/cache"
	"github.com/charlesng35/vocabquiz/internal/database"
	"github.com/charlesng35/vocabquiz/internal/middleware"
	"github.com/charlesng35/vocabquiz/internal/notifications"
	"github.com/charlesng35/vocabquiz/pkg/logger"
	"github.com/charlesng35/vocabquiz/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Mail      *mail.Transport
	Auth      *iauth.Service
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services and the HTTP router.
// secretGenerated reports that cfg.Auth.JWT.Secret was generated for this run
// and must be reconciled with the persisted one.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, secretGenerated bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if secretGenerated {
		persisted, err := database.EnsureJWTSecret(ctx, stack.DB, cfg.Auth.JWT.Secret)
		if err != nil {
			return nil, fmt.Errorf("persist jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = persisted
	}
	if app.WeakJWTSecret(cfg.Auth.JWT.Secret) {
		log.Warn("auth.jwt.secret is shorter than recommended",
			zap.Int("min_bytes", app.MinJWTSecretBytes),
		)
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.RedisEnabled() {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed rate limiting", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewCacheRateStore(stack.Redis)
	default:
		stack.RateStore = middleware.NewCacheRateStore(dbStore)
	}

	stack.Mail = mail.NewTransport(cfg.Email.SMTPSettings())
	gateway, err := notifications.NewGateway(stack.Mail, notifications.WithAppName(cfg.App.Name))
	if err != nil {
		return nil, fmt.Errorf("initialise notification gateway: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp disabled; verification and reset emails will not be delivered")
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Auth, err = iauth.NewService(stack.DB, jwtSvc, gateway, cfg.Auth.ServiceConfig(cfg.App))
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(
		stack.Auth.Sessions(),
		[]*iauth.CapabilityLedger{
			stack.Auth.Ledger(iauth.TokenEmailVerification),
			stack.Auth.Ledger(iauth.TokenPasswordReset),
		},
		maintenance.WithCachePurger(dbStore),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:        stack.DB,
		Config:    cfg,
		Auth:      stack.Auth,
		Cookies:   iauth.NewCookiePolicy(cfg.Auth.CookieConfig(cfg.Server.IsProduction())),
		RateStore: stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources. Every step runs;
// failures are combined.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if _, err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
		s.Cleaner = nil
	}

	if s.Mail != nil {
		errs = multierr.Append(errs, s.Mail.Close())
		s.Mail = nil
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
		s.Redis = nil
	}

	if s.DB != nil {
		errs = multierr.Append(errs, closeDatabase(s.DB))
		s.DB = nil
	}

	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, cfg.Auth.AdminSeed()); err != nil {
		_ = closeDatabase(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("obtain sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
