/**
 * @description
 * This file contains the Service that hosts the pool service's use cases: result
 * declaration, pool lifecycle, ticket purchase, withdrawals and wallet top-ups. It
 * coordinates the repository, the payout provider and the event producer.
 *
 * Key features:
 * - Every money movement happens inside a single store transaction with row locks.
 * - Events are published after commit and never change an operation's outcome.
 * - Randomness and the clock are injectable so selection is deterministic in tests.
 *
 * @dependencies
 * - internal/domain, internal/store, internal/ledger, internal/selection.
 * - pkg/payoutclient, pkg/rabbitmq: External collaborators.
 * - github.com/sirupsen/logrus: Logging.
 */

package app

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luckypool/pool-service/internal/selection"
	"github.com/luckypool/pool-service/internal/store"
	"github.com/luckypool/pool-service/pkg/payoutclient"
	"github.com/luckypool/pool-service/pkg/rabbitmq"
	"github.com/sirupsen/logrus"
)

// PayoutProvider is the part of the payout client the service uses.
type PayoutProvider interface {
	CreatePayout(ctx context.Context, payload payoutclient.PayoutRequest, idempotencyKey string) (*payoutclient.Payout, error)
	FindPayoutByReference(ctx context.Context, referenceID string) (*payoutclient.Payout, error)
	CreateOrder(ctx context.Context, payload payoutclient.OrderRequest) (*payoutclient.Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

// RateLimiter charges one request for subject under rule. It returns
// *domain.RateLimitError when the budget is spent.
type RateLimiter interface {
	Allow(ctx context.Context, rule RateLimitRule, subject string) error
}

// CacheInvalidator drops cached listings after pool writes. Failures are its own concern.
type CacheInvalidator interface {
	InvalidatePools(ctx context.Context)
}

// Options are the tunables of the Service.
type Options struct {
	SelectionMode        selection.Mode
	SettlementPopulation int
	Currency             string
	EventsExchange       string
	TicketRateLimit      int
	WithdrawRateLimit    int
}

func (o *Options) applyDefaults() {
	if o.SelectionMode == "" {
		o.SelectionMode = selection.Lenient
	}
	if o.SettlementPopulation <= 0 {
		o.SettlementPopulation = 100
	}
	if o.Currency == "" {
		o.Currency = "INR"
	}
	if o.EventsExchange == "" {
		o.EventsExchange = "lottery_events"
	}
}

// Service provides the core business logic of the pool service.
type Service struct {
	repo      store.Repository
	payouts   PayoutProvider
	publisher rabbitmq.Publisher
	limiter   RateLimiter
	cache     CacheInvalidator
	logger    logrus.FieldLogger
	opts      Options

	rng      selection.Source
	now      func() time.Time
	newToken func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithRandom replaces the random source used for scoring, tie-breaks and ticket ids.
func WithRandom(src selection.Source) Option {
	return func(s *Service) { s.rng = &lockedSource{src: src} }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIdempotencyTokens replaces the payout idempotency token generator.
func WithIdempotencyTokens(next func() string) Option {
	return func(s *Service) { s.newToken = next }
}

func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

func WithCacheInvalidator(cache CacheInvalidator) Option {
	return func(s *Service) { s.cache = cache }
}

// NewService creates a new Service.
func NewService(repo store.Repository, payouts PayoutProvider, publisher rabbitmq.Publisher, logger logrus.FieldLogger, opts Options, options ...Option) *Service {
	opts.applyDefaults()
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	s := &Service{
		repo:      repo,
		payouts:   payouts,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		rng:       globalSource{},
		now:       time.Now,
		newToken:  uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// publish sends an event after commit. Failures are logged only.
func (s *Service) publish(ctx context.Context, routingKey string, event interface{}) {
	if err := s.publisher.Publish(ctx, s.opts.EventsExchange, routingKey, event); err != nil {
		s.logger.WithFields(logrus.Fields{
			"component":   "events",
			"routing_key": routingKey,
		}).WithError(err).Warn("event publish failed")
	}
}

func (s *Service) invalidatePools(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidatePools(ctx)
	}
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// lockedSource serializes access to a non-thread-safe source.
type lockedSource struct {
	mu  sync.Mutex
	src selection.Source
}

func (l *lockedSource) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.IntN(n)
}
