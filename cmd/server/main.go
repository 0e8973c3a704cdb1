/**
 * @description
 * This is the main entry point for the pool service HTTP API. It loads configuration,
 * connects Postgres, Redis and RabbitMQ, builds the Service and serves the chi router
 * until SIGINT or SIGTERM, then drains in-flight requests.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/bootstrap, internal/api, internal/config: Service wiring.
 * - github.com/sirupsen/logrus: Logging.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/luckypool/pool-service/internal/api"
	"github.com/luckypool/pool-service/internal/bootstrap"
	"github.com/luckypool/pool-service/internal/config"
	"github.com/luckypool/pool-service/pkg/logging"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file for local development.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.WithError(err).Fatal("config load failed")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("component", "bootstrap")
	if envErr != nil {
		log.Debug("no .env file found; using environment variables")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be configured")
	}
	if cfg.InternalAPIKey == "" {
		log.Warn("INTERNAL_API_KEY not set; internal routes disabled")
	}
	log.WithField("port", cfg.ServerPort).Info("starting pool service")

	ctx := context.Background()
	rt, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer rt.Close()

	handlers := api.NewHandlers(rt.Service, logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"component": "http", "addr": server.Addr}).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("component", "http").WithError(err).Fatal("server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.WithField("component", "http").Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("component", "http").WithError(err).Error("shutdown failed")
	}
	logger.WithField("component", "http").Info("shutdown complete")
}
