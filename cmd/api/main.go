package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goequity/internal"
	"goequity/internal/api"
	"goequity/internal/config"
	"goequity/internal/container"
	"goequity/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	logger := internal.NewDefaultLogger()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	gin.SetMode(appConfig.Server.GinMode)

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		logger.WithError(err).Error("failed to create application container")
		os.Exit(1)
	}
	defer appContainer.Shutdown(context.Background())

	if appConfig.Database.Enabled() {
		db, err := initDatabase(appConfig)
		if err != nil {
			logger.WithError(err).Error("failed to initialize database")
			os.Exit(1)
		}
		if err := appContainer.InitWithDatabase(context.Background(), db); err != nil {
			logger.WithError(err).Error("failed to initialize container")
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set, analyses are kept in memory only")
	}

	handler := appContainer.Handler()
	router := api.NewRouter(handler, appContainer.ProgressHub, api.RouterOptions{
		CodeVersion:      appConfig.Simulation.CodeVersion,
		MetricsEnabled:   appConfig.Metrics.Enabled,
		MetricsOnOwnPort: appConfig.Metrics.Port != "",
		Logger:           logger,
	})

	if appConfig.Metrics.Enabled && appConfig.Metrics.Port != "" {
		go func() {
			addr := ":" + appConfig.Metrics.Port
			logger.Info("serving metrics on %s", addr)
			if err := http.ListenAndServe(addr, metrics.NewRouter()); err != nil {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:    ":" + appConfig.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting API server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func initDatabase(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
