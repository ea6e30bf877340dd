// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed window algorithm. The chat client uses it to throttle messages that
// other processes inject through the event bridge, so a runaway publisher
// cannot flood the chat server under the user's name.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:send:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// RuleBridgeSend allows 10 bridged messages per 10 seconds per user.
var RuleBridgeSend = Rule{Key: "rl:send:", Limit: 10, Window: 10 * time.Second}

// Limiter applies one Rule to many identifiers.
type Limiter struct {
	client *redis.Client
	rule   Rule
}

// NewLimiter creates a Limiter enforcing rule with the given Redis client.
func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	return &Limiter{client: client, rule: rule}
}

// Rule returns the enforced policy.
func (l *Limiter) Rule() Rule {
	return l.rule
}

func (l *Limiter) key(identifier string) string {
	return l.rule.Key + identifier
}

// Allow counts one request for identifier and reports whether it fits in
// the current window. The window starts with the first request. Redis
// errors fail open: the request is allowed and the error returned.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.key(identifier)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Warn().Err(err).Msgf("[ratelimit] INCR failed key=%s (failing open)", key)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			log.Warn().Err(err).Msgf("[ratelimit] EXPIRE failed key=%s (failing open)", key)
			// A key without TTL would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

// Remaining returns how many requests identifier has left in the current
// window, the full limit when no window is open. Redis errors report the
// full limit.
func (l *Limiter) Remaining(ctx context.Context, identifier string) (int, error) {
	count, err := l.client.Get(ctx, l.key(identifier)).Int()
	if err == redis.Nil {
		return l.rule.Limit, nil
	}
	if err != nil {
		return l.rule.Limit, err
	}
	if count >= l.rule.Limit {
		return 0, nil
	}
	return l.rule.Limit - count, nil
}
