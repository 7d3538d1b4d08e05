package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/config"
	"infobot-backend/internal/handlers"
	"infobot-backend/internal/logger"
	"infobot-backend/internal/services"
	"infobot-backend/internal/storage"
	"infobot-backend/internal/storage/memory"
	"infobot-backend/internal/storage/mongostore"
	"infobot-backend/internal/storage/pgstore"
	"infobot-backend/internal/storage/redisstore"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Component("main")

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.StorageDriver, err)
	}
	defer store.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid bonus timezone: %v", err)
	}

	hub := handlers.NewWebSocketHub()
	defer hub.Close()

	lookup := services.NewHTTPLookupClient(cfg.LookupBaseURL, cfg.LookupAPIKey, cfg.LookupTimeout, cfg.LookupRatePerSecond)
	engine := services.NewEngine(store, lookup, hub, services.EngineOptions{
		Location:     loc,
		AdminTaskTTL: cfg.AdminTaskTTL,
	})

	initCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err = engine.Init(initCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.TokenTTL, cfg.AdapterAPIKey, cfg.AdminAPIKey, time.Now)

	scheduler := services.NewScheduler(engine.Referrals(), engine.SettingsService(), cfg.ReferralGrace)
	if err := scheduler.Register(cfg.ReferralSweepSpec, cfg.SettingsRefreshSpec); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	scheduler.Start()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterOptions{
		Engine:              engine,
		JWT:                 jwtService,
		Hub:                 hub,
		Store:               store,
		SearchRatePerMinute: cfg.SearchRatePerMinute,
		ReferralGrace:       cfg.ReferralGrace,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "storage": cfg.StorageDriver}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithField("error", err).Error("Server shutdown failed")
	}
	scheduler.Stop(ctx)
	engine.Wait()
}

func openStore(cfg *config.Config) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.StorageDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return pgstore.New(ctx, cfg.PostgresDSN, cfg.PostgresPoolSize)
	case config.DriverMongo:
		return mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return redisstore.New(ctx, cfg.RedisURL, cfg.RedisPass, cfg.RedisDB)
	}
}
