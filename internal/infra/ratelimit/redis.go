package ratelimit

import (
	"context"
	"errors"
	"time"

	"seald/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Limiter state lives under its own prefix so seald can share a Redis
// instance with other tenants without key collisions.
const redisKeyPrefix = "seald:ratelimit:"

type redisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// redisAllowScript counts atomically and stamps the window TTL on the
// first hit. The reply is {count, remaining window millis}.
var redisAllowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

func NewRedisLimiter(addr, password string, db int, now func() time.Time) (domain.RateLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisLimiter{client: client, now: now}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}
	reply, err := redisAllowScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, windowMillis).Result()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	return decisionFromReply(reply, limit, r.now())
}

// decisionFromReply turns the script reply into the decision the verify
// endpoints act on. ResetAt comes from the key's remaining TTL so every
// replica reports the same window end.
func decisionFromReply(reply any, limit int, now time.Time) (domain.RateLimitDecision, error) {
	values, ok := reply.([]any)
	if !ok || len(values) < 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected rate limit script reply")
	}
	count, ok := values[0].(int64)
	if !ok {
		return domain.RateLimitDecision{}, errors.New("non-integer rate limit counter")
	}
	ttlMillis, _ := values[1].(int64)

	resetAt := now
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
