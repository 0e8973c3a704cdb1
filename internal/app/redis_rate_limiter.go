package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/luckypool/pool-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimitRule is a per-subject request budget for one operation.
type RateLimitRule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

func (r RateLimitRule) enabled() bool {
	return r.Scope != "" && r.Limit > 0 && r.Window > 0
}

var (
	ticketPurchaseRule  = RateLimitRule{Scope: "ticket_purchase", Window: time.Minute}
	withdrawRequestRule = RateLimitRule{Scope: "withdraw_request", Window: time.Minute}
)

// withLimit returns a copy of r allowing limit requests per window.
func (r RateLimitRule) withLimit(limit int) RateLimitRule {
	r.Limit = limit
	return r
}

// windowCounterScript increments the subject's counter, starting the window on the
// first hit, and returns the count and the milliseconds left in the window.
var windowCounterScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local left = redis.call("PTTL", KEYS[1])
if left < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  left = tonumber(ARGV[1])
end
return {hits, left}
`)

// RedisRateLimiter charges requests against fixed windows shared by every replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter keys counters as <prefix>:rate_limit:<scope>:<subject>.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "luckypool"
	}
	return &RedisRateLimiter{client: client, prefix: prefix + ":rate_limit"}
}

// Allow charges one request for subject under rule. A spent budget yields
// *domain.RateLimitError; any other error is a limiter failure.
func (l *RedisRateLimiter) Allow(ctx context.Context, rule RateLimitRule, subject string) error {
	subject = strings.TrimSpace(subject)
	if l == nil || l.client == nil || !rule.enabled() || subject == "" {
		return nil
	}

	windowMs := max(rule.Window.Milliseconds(), 1000)
	key := l.key(rule.Scope, subject)
	raw, err := windowCounterScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return fmt.Errorf("rate limit %s: %w", rule.Scope, err)
	}
	return windowDecision(raw, rule.Limit, windowMs)
}

func (l *RedisRateLimiter) key(scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, scope, subject)
}

// windowDecision turns the script reply {hits, msLeft} into an admission decision.
func windowDecision(raw interface{}, limit int, windowMs int64) error {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return fmt.Errorf("unexpected rate limiter reply %T", raw)
	}
	hits, ok := values[0].(int64)
	if !ok {
		return fmt.Errorf("unexpected rate limiter count %T", values[0])
	}
	if hits <= int64(limit) {
		return nil
	}

	msLeft, ok := values[1].(int64)
	if !ok || msLeft < 0 {
		msLeft = windowMs
	}
	return &domain.RateLimitError{RetryAfterSeconds: max(int(math.Ceil(float64(msLeft)/1000)), 1)}
}

// checkRateLimit fails open: a limiter failure is logged and the request proceeds.
func (s *Service) checkRateLimit(ctx context.Context, rule RateLimitRule, subject string) error {
	if s.limiter == nil || !rule.enabled() {
		return nil
	}
	err := s.limiter.Allow(ctx, rule, subject)
	var limited *domain.RateLimitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &limited):
		return limited
	default:
		s.logger.WithFields(logrus.Fields{"component": "rate_limit", "scope": rule.Scope}).WithError(err).Warn("rate limiter unavailable; allowing request")
		return nil
	}
}
