package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/adedejiosvaldo/rescuelink/backend/internal/config"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/database"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/handlers"
	"github.com/adedejiosvaldo/rescuelink/backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := setupLogger(cfg)
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Initialize storage
	var store services.Store
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		postgres, err := database.NewPostgresDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer postgres.Close()
		if err := postgres.Migrate(ctx); err != nil {
			logger.Fatalf("Failed to migrate Postgres: %v", err)
		}
		store = postgres
		logger.Info("Connected to Postgres")
	default:
		store = database.NewMemoryDB()
		logger.Warn("Using in-memory storage, data will not survive a restart")
	}

	// Initialize Redis (optional)
	var (
		cache      services.StatusCache
		limiter    handlers.RateLimiter
		publishers []services.EventPublisher
	)
	if cfg.RedisURL != "" {
		redis, err := database.NewRedisDB(cfg.RedisURL, cfg.EventsChannel)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
		cache, limiter = redis, redis
		publishers = append(publishers, redis)
		logger.WithField("channel", cfg.EventsChannel).Info("Connected to Redis")
	}

	// Initialize Firebase (optional)
	var fcmClient *messaging.Client
	if cfg.FCMCredentialsPath != "" {
		opt := option.WithCredentialsFile(cfg.FCMCredentialsPath)
		app, err := firebase.NewApp(ctx, nil, opt)
		if err != nil {
			logger.Warnf("Failed to initialize Firebase: %v", err)
		} else {
			fcmClient, err = app.Messaging(ctx)
			if err != nil {
				logger.Warnf("Failed to initialize FCM client: %v", err)
			} else {
				logger.Info("Firebase FCM initialized")
			}
		}
	}

	// Initialize services
	publishers = append(publishers, services.NewAlertEngine(cfg, fcmClient))
	coordination := services.NewCoordinationService(cfg, store, cache, publishers...)
	if err := coordination.Warm(ctx); err != nil {
		logger.Fatalf("Failed to warm geo indexes: %v", err)
	}
	logger.Info("Services initialized")

	// Initialize handlers
	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	h := handlers.Handlers{
		SOS:        handlers.NewSOSHandler(cfg, coordination, limiter),
		Responders: handlers.NewResponderHandler(coordination),
	}
	if cfg.HMACSecret != "" {
		h.SMS = handlers.NewSMSHandler(cfg, coordination, limiter)
	}

	// Setup Gin router
	router := handlers.SetupRouter(h, logger)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("RescueLink API server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped gracefully")
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.StandardLogger()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
