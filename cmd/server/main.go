// Package main runs the group-buying HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dealmates/backend/config"
	"github.com/dealmates/backend/internal/auth"
	"github.com/dealmates/backend/internal/deals"
	"github.com/dealmates/backend/internal/middleware"
	"github.com/dealmates/backend/internal/models"
	"github.com/dealmates/backend/internal/notifications"
	"github.com/dealmates/backend/internal/payments"
	"github.com/dealmates/backend/internal/worker"
	"github.com/dealmates/backend/pkg/cache"
	"github.com/dealmates/backend/pkg/database"
	"github.com/dealmates/backend/pkg/queue"
	"github.com/dealmates/backend/pkg/redis"
	"github.com/dealmates/backend/pkg/response"
	"github.com/dealmates/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			MediaBucket:          cfg.AWS.MediaBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	readCache := cache.New(rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Notifications
	notifRepo := notifications.NewRepository(pool)
	notifService := notifications.NewService(notifRepo, jobQueue, readCache, logger)
	notifHandler := notifications.NewHandler(notifService, logger)

	// Payments (settlement engine)
	authRepo := auth.NewRepository(pool)
	dealRepo := deals.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	provider := payments.NewPayPalClient(cfg.PayPal, logger)
	paymentService := payments.NewService(paymentRepo, provider, dealRepo, notifService, readCache, cfg.PayPal.Currency, logger)
	paymentHandler := payments.NewHandler(paymentService, logger)

	// Deals (lifecycle controller)
	dealService := deals.NewService(dealRepo, paymentService, notifService, authRepo, readCache, logger)
	dealHandler := deals.NewHandler(dealService, s3Client, logger)

	// Auth / user accounts
	authHandler := auth.NewHandler(authRepo, jwtService, s3Client, notifService, dealService, logger)

	// Webhook reconciler
	paymentWebhook := payments.NewWebhookHandler(paymentService, dealService, logger)

	// Notification fan-out worker (also runnable standalone via cmd/worker)
	fanoutProcessor := worker.NewFanoutProcessor(notifService, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public catalog reads
	router.GET("/deals", dealHandler.List)
	router.GET("/deals/active", dealHandler.ListActive)
	router.GET("/deals/category/:category", dealHandler.ListByCategory)
	router.GET("/deals/:id", dealHandler.GetByID)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users
		api.GET("/users", middleware.RequireRole(string(models.RoleAdmin)), authHandler.List)
		api.DELETE("/users/:id", middleware.RequireRole(string(models.RoleAdmin)), authHandler.Delete)
		api.GET("/users/me", authHandler.Me)
		api.PATCH("/users/me", authHandler.UpdateProfile)
		api.GET("/users/me/deals", authHandler.MyJoinedDeals)
		api.GET("/users/me/wishlist", authHandler.MyWishlist)
		api.POST("/users/me/avatar", authHandler.UploadAvatar)

		// Deals
		api.POST("/deals", middleware.RequireRole(string(models.RoleAdmin)), dealHandler.Create)
		api.PATCH("/deals/:id", middleware.RequireRole(string(models.RoleAdmin)), dealHandler.Update)
		api.DELETE("/deals/:id", middleware.RequireRole(string(models.RoleAdmin)), dealHandler.Delete)
		api.PATCH("/deals/:id/status", middleware.RequireRole(string(models.RoleAdmin)), dealHandler.UpdateStatus)
		api.POST("/deals/:id/media/generate-upload-url", middleware.RequireRole(string(models.RoleAdmin)), dealHandler.GenerateUploadURL)
		api.POST("/deals/:id/join", dealHandler.Join)
		api.POST("/deals/:id/wishlist", dealHandler.AddToWishlist)
		api.DELETE("/deals/:id/wishlist", dealHandler.RemoveFromWishlist)

		// Payments
		api.POST("/payments/approve/:orderId", paymentHandler.Approve)
		api.GET("/payments", middleware.RequireRole(string(models.RoleAdmin)), paymentHandler.List)

		// Notifications
		api.GET("/notifications", notifHandler.ListMine)
		api.GET("/notifications/all", middleware.RequireRole(string(models.RoleAdmin)), notifHandler.ListAll)
		api.PATCH("/notifications/:id/read", notifHandler.MarkAsRead)
	}

	// Webhooks (no JWT; the reconciler treats events as hints and re-verifies
	// against local state)
	router.POST("/webhooks/paypal", paymentWebhook.HandleEvent)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (notification fan-out)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go fanoutProcessor.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
