package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workshops/internal/auth"
	"workshops/internal/config"
	"workshops/internal/database"
	"workshops/internal/handlers"
	"workshops/internal/reminders"
	"workshops/internal/services"
	"workshops/internal/store"

	"github.com/benbjohnson/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	if err := database.InitDB(cfg.Database, logger); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	db := database.GetDB()

	workshops := store.NewWorkshopStore(db)
	registrations := store.NewRegistrationStore(db)
	users := store.NewUserStore(db)
	settings := store.NewSettingsStore(db)

	emailService := services.NewEmailService(cfg.Email, logger)
	if cfg.Email.APIKey == "" {
		logger.Warn("SendGrid API key not set, reminder emails will fail until it is configured")
	}

	meetingService, err := services.NewMeetingService(cfg.Zoom, logger)
	if err != nil {
		logger.Info("Zoom is not configured, meeting provisioning disabled")
	}

	engine := reminders.NewEngine(reminders.Dependencies{
		Workshops:     workshops,
		Registrations: registrations,
		Users:         users,
		Settings:      settings,
		Ledger:        store.NewLedger(db),
		Sender:        emailService,
	}, cfg.Reminders.SendTimeout, logger)

	scheduler := reminders.NewScheduler(engine, clock.New(), cfg.Reminders.Interval, logger)
	if cfg.Reminders.Enabled {
		scheduler.Start()
	} else {
		logger.Info("Reminder scheduler disabled")
	}

	admin := &handlers.AdminHandler{
		Settings:      settings,
		Workshops:     workshops,
		Registrations: registrations,
		Users:         users,
		Runner:        engine,
		Broadcaster:   reminders.NewBroadcaster(engine, logger),
		Email:         emailService,
		Logger:        logger.Named("admin"),
	}
	// A nil *MeetingService in the interface would not compare equal to nil
	if meetingService != nil {
		admin.Meetings = meetingService
	}

	router := setupRouter(cfg, admin, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	// Let an in-flight reminder pass finish before the database goes away
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsRelease() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func setupRouter(cfg *config.Config, admin *handlers.AdminHandler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if !cfg.IsRelease() {
		router.Use(gin.Logger())
	}

	// Configure trusted proxies
	router.SetTrustedProxies([]string{"127.0.0.1"})

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", auth.AdminKeyHeader)
	router.Use(cors.New(corsConfig))

	// Basic routes
	router.GET("/", handlers.HomeHandler)
	router.GET("/health", handlers.HealthHandler)

	// Admin routes (API key required)
	adminGroup := router.Group("/admin")
	tokens := auth.NewTokenVerifier(cfg.Admin.JWTSecret, cfg.Admin.TokenIssuer)
	adminGroup.Use(auth.AdminMiddleware(cfg.Admin.APIKey, tokens, logger))
	admin.Register(adminGroup)

	return router
}
