/**
 * @description
 * This package wires the infrastructure shared by the server and scheduler binaries:
 * the Postgres pool, the optional Redis client, the event producer and the Service.
 * Optional collaborators (Redis, RabbitMQ) degrade with a warning instead of failing boot.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: PostgreSQL connection pool.
 * - github.com/redis/go-redis/v9: Rate limiting and pool listing cache.
 * - pkg/rabbitmq, pkg/payoutclient: External collaborators.
 * - github.com/sirupsen/logrus: Logging.
 */
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luckypool/pool-service/internal/app"
	"github.com/luckypool/pool-service/internal/config"
	"github.com/luckypool/pool-service/internal/selection"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/luckypool/pool-service/pkg/payoutclient"
	"github.com/luckypool/pool-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisPingTimeout = 5 * time.Second

// Runtime holds the long-lived collaborators of a binary. Close releases them.
type Runtime struct {
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Publisher rabbitmq.Publisher
	Service   *app.Service
}

// Open connects every collaborator described by cfg and builds the Service.
func Open(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Runtime, error) {
	log := logger.WithField("component", "bootstrap")

	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database connected")

	rt := &Runtime{DB: db}
	rt.Redis = OpenRedis(ctx, cfg.RedisURL, log)
	rt.Publisher = OpenPublisher(cfg.RabbitMQURL, logger)

	var options []app.Option
	if rt.Redis != nil {
		options = append(options,
			app.WithRateLimiter(RateLimiter(rt.Redis, cfg)),
			app.WithCacheInvalidator(PoolCache(rt.Redis, cfg, logger)),
		)
	}

	payouts := payoutclient.NewClient(cfg.PayoutAPIBaseURL, cfg.PayoutKeyID, cfg.PayoutKeySecret, cfg.PayoutAccountNumber)
	payouts.Logger = logger
	if cfg.PayoutKeyID == "" || cfg.PayoutKeySecret == "" {
		log.Warn("payout provider credentials missing; payouts and top-ups will fail")
	}

	rt.Service = app.NewService(
		store.NewPostgresRepository(db),
		payouts,
		rt.Publisher,
		logger,
		ServiceOptions(cfg),
		options...,
	)
	return rt, nil
}

// ServiceOptions maps configuration onto the Service tunables.
func ServiceOptions(cfg config.Config) app.Options {
	return app.Options{
		SelectionMode:        selection.ParseMode(cfg.WinnerSelectionMode),
		SettlementPopulation: cfg.SettlementPopulation,
		Currency:             cfg.PayoutCurrency,
		EventsExchange:       cfg.EventsExchange,
		TicketRateLimit:      cfg.TicketRateLimitPerMinute,
		WithdrawRateLimit:    cfg.WithdrawRateLimitPerMinute,
	}
}

// RateLimiter namespaces its counters under REDIS_KEY_PREFIX.
func RateLimiter(client redis.UniversalClient, cfg config.Config) *app.RedisRateLimiter {
	return app.NewRedisRateLimiter(client, cfg.RedisKeyPrefix)
}

// PoolCache deletes POOL_CACHE_KEYS verbatim. The listing readers own those key
// names, so REDIS_KEY_PREFIX is not applied to them.
func PoolCache(client redis.UniversalClient, cfg config.Config, logger logrus.FieldLogger) *app.RedisCacheInvalidator {
	return app.NewRedisCacheInvalidator(client, cfg.PoolCacheKeys, logger)
}

// OpenDatabase parses the database url and opens a pool sized by configuration.
func OpenDatabase(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be configured")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis returns a connected client, or nil when redisURL is empty or unreachable.
func OpenRedis(ctx context.Context, redisURL string, log logrus.FieldLogger) *redis.Client {
	if redisURL == "" {
		log.Warn("redis url missing; rate limiting and cache invalidation disabled")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("redis url parse failed; rate limiting and cache invalidation disabled")
		return nil
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis ping failed; rate limiting and cache invalidation disabled")
		client.Close()
		return nil
	}
	log.Info("redis connected")
	return client
}

// OpenPublisher returns a RabbitMQ producer, falling back to a no-op publisher.
func OpenPublisher(amqpURL string, logger logrus.FieldLogger) rabbitmq.Publisher {
	log := logger.WithField("component", "bootstrap")
	if amqpURL == "" {
		log.Warn("rabbitmq url missing; events will not be published")
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	producer, err := rabbitmq.NewEventProducer(amqpURL, logger)
	if err != nil {
		log.WithError(err).Warn("rabbitmq producer unavailable; using fallback")
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	log.Info("rabbitmq producer connected")
	return producer
}

// Close releases everything Open acquired.
func (rt *Runtime) Close() {
	if rt.Publisher != nil {
		rt.Publisher.Close()
	}
	if rt.Redis != nil {
		rt.Redis.Close()
	}
	if rt.DB != nil {
		rt.DB.Close()
	}
}
