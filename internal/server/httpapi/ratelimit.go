package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizforge/identity/internal/common"
	"github.com/quizforge/identity/internal/logging"
)

// Limiter decides whether one more request under key fits the window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// The counter and its expiry must move together or a crashed request could
// leave a key that never expires, so both run in one script.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisLimiter is a fixed-window request counter shared across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	raw, err := fixedWindowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key}, window.Milliseconds()).Result()
	if err != nil {
		return false, window, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, window, common.ErrorInternal
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, window, common.ErrorInternal
	}
	ttlMS, ok := values[1].(int64)
	if !ok || ttlMS < 0 {
		ttlMS = window.Milliseconds()
	}

	if count > int64(limit) {
		return false, time.Duration(ttlMS) * time.Millisecond, nil
	}
	return true, 0, nil
}

// rateLimit caps requests per client IP per minute. A limiter backend
// failure lets the request through; this transport limit is a convenience
// layer, the durable login-abuse windows still hold.
func rateLimit(limiter Limiter, perMinute int, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := limiter.Allow(r.Context(), clientIP(r), perMinute, time.Minute)
			if err != nil {
				logger.Warn(r.Context(), "rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
				writeError(w, common.ErrorTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
