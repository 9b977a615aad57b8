package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Counter increments a windowed counter and returns the new value.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisCounter is a Counter on INCR + EXPIRE in one pipeline.
type RedisCounter struct {
	Client *redis.Client
}

func (r RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.Client.Pipeline()
	cnt := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return cnt.Val(), nil
}

// RateLimitConfig config for the per-caller fixed-window limiter.
type RateLimitConfig struct {
	Counter        Counter
	Limit          int           // requests per window, <= 0 disables
	Window         time.Duration // default 1m
	KeyPrefix      string        // default "rl:caller:"
	RetryAfterHint bool          // set Retry-After header when limited
	Now            func() time.Time
}

// RateLimitMiddleware applies a fixed-window limit per API key fingerprint.
// It expects the caller set by APIKeyMiddleware. Counter failures let the
// request through.
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:caller:"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := CallerFromCtx(c)
			if caller == "" || cfg.Limit <= 0 || cfg.Counter == nil {
				return next(c)
			}

			// fixed-window key: rl:caller:{fingerprint}:{window index}
			now := cfg.Now()
			win := now.UnixNano() / int64(cfg.Window)
			key := cfg.KeyPrefix + caller + ":" + strconv.FormatInt(win, 10)

			cnt, err := cfg.Counter.Incr(c.Request().Context(), key, cfg.Window*2)
			if err != nil {
				c.Logger().Warnf("rate limit counter: %v", err)
				return next(c)
			}

			if cnt > int64(cfg.Limit) {
				if cfg.RetryAfterHint {
					remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
					secs := int(remain.Round(time.Second) / time.Second)
					if secs < 1 {
						secs = 1
					}
					c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
			}
			return next(c)
		}
	}
}
