package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/authd-api/api/swagger"
	"github.com/noah-isme/authd-api/internal/handler"
	"github.com/noah-isme/authd-api/internal/middleware"
	"github.com/noah-isme/authd-api/internal/repository"
	"github.com/noah-isme/authd-api/internal/service"
	"github.com/noah-isme/authd-api/pkg/cache"
	"github.com/noah-isme/authd-api/pkg/config"
	"github.com/noah-isme/authd-api/pkg/database"
	"github.com/noah-isme/authd-api/pkg/jobs"
	"github.com/noah-isme/authd-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/authd-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/authd-api/pkg/middleware/requestid"
)

// @title Authd API
// @version 1.0.0
// @description Token lifecycle and revocation service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The engine degrades to store-only revocation lookups without Redis.
		logr.Sugar().Warnw("redis unavailable, revocation cache disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	secureTokenRepo := repository.NewSecureTokenRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	notifier := service.NewLogNotifier(logr)

	codec := service.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, logr)
	revocationSvc := service.NewRevocationService(blacklistRepo, cacheRepo, cfg.Auth.RevocationCacheTTL, logr, metricsSvc)
	authSvc := service.NewAuthService(userRepo, refreshRepo, auditRepo, codec, revocationSvc, validate, logr, metricsSvc, cfg.Auth)
	secureTokenSvc := service.NewSecureTokenService(secureTokenRepo, logr)
	passwordResetSvc := service.NewPasswordResetService(userRepo, secureTokenSvc, authSvc, notifier, auditRepo, validate, logr, cfg.Auth.PasswordResetWindow)
	emailVerificationSvc := service.NewEmailVerificationService(userRepo, secureTokenSvc, notifier, auditRepo, validate, logr, cfg.Auth.EmailVerificationWindow)
	userSvc := service.NewUserService(userRepo, logr)

	maintenanceSvc := service.NewMaintenanceService(authSvc, revocationSvc, passwordResetSvc, emailVerificationSvc, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Cleanup.Enabled {
		sweepQueue := jobs.NewQueue("token-cleanup", func(ctx context.Context, job jobs.Job) error {
			return maintenanceSvc.RunSweep(ctx)
		}, jobs.QueueConfig{Workers: cfg.Cleanup.Workers, Logger: logr})
		sweepQueue.Start(ctx)
		defer sweepQueue.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Cleanup.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					job := jobs.Job{ID: fmt.Sprintf("sweep-%d", now.Unix()), Type: "expiry-sweep"}
					if err := sweepQueue.Enqueue(job); err != nil {
						logr.Sugar().Warnw("failed to enqueue cleanup sweep", "error", err)
					}
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	accountHandler := handler.NewAccountHandler(passwordResetSvc, emailVerificationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := r.Group(cfg.APIPrefix + "/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.Auth(codec, revocationSvc), authHandler.Logout)
		auth.GET("/me", middleware.Auth(codec, revocationSvc), authHandler.Me)

		auth.POST("/password/forgot", accountHandler.ForgotPassword)
		auth.POST("/password/reset", accountHandler.ResetPassword)
		auth.POST("/verify/request", accountHandler.RequestVerification)
		auth.POST("/verify/confirm", accountHandler.ConfirmVerification)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
