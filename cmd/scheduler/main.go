/**
 * @description
 * This is the main entry point for the pool scheduler. It is a non-HTTP, long-running
 * process that runs pool maintenance on a cron schedule and consumes declaration
 * requests from RabbitMQ.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/bootstrap, internal/scheduler, internal/app: Service wiring and jobs.
 * - pkg/rabbitmq: Declaration request consumer.
 */
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/luckypool/pool-service/internal/app"
	"github.com/luckypool/pool-service/internal/bootstrap"
	"github.com/luckypool/pool-service/internal/config"
	"github.com/luckypool/pool-service/internal/domain"
	"github.com/luckypool/pool-service/internal/scheduler"
	"github.com/luckypool/pool-service/pkg/logging"
	"github.com/luckypool/pool-service/pkg/rabbitmq"
	"github.com/sirupsen/logrus"
)

func main() {
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

	rt, err := bootstrap.Open(context.Background(), cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}
	defer rt.Close()

	jobs := scheduler.NewJobs(rt.Service, logger)
	cronScheduler, err := scheduler.NewScheduler(jobs, logger, cfg.PoolMaintenanceSchedule, cfg.SchedulerTimezone)
	if err != nil {
		log.WithError(err).Fatal("scheduler init failed")
	}
	if err := cronScheduler.Start(); err != nil {
		log.WithError(err).Fatal("scheduler start failed")
	}
	log.Info("scheduler started")

	if cfg.RabbitMQURL == "" {
		log.Warn("rabbitmq url missing; declaration requests will not be consumed")
	} else {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			log.WithError(err).Fatal("rabbitmq consumer init failed")
		}
		defer consumer.Close()

		declareConsumer := app.NewDeclareRequestConsumer(rt.Service, logger)
		bindings := map[string]func([]byte) bool{
			domain.EventPoolDeclareRequested: declareConsumer.HandleMessage,
		}
		if err := consumer.ConsumeWithBindings(cfg.EventsExchange, cfg.DeclareQueue, bindings); err != nil {
			log.WithError(err).Fatal("declare consumer start failed")
		}
		log.WithField("queue", cfg.DeclareQueue).Info("declare consumer started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping scheduler")
	stopCtx := cronScheduler.Stop()
	<-stopCtx.Done()
	log.Info("scheduler stopped gracefully")
}
