package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/bellflower/pkg/context"
	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/redis"
)

// Limiter is satisfied by *redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit redis.Limit) (*redis.RateLimitResult, error)
}

// RateLimit applies a sliding window per caller, or per client IP before authentication.
// Limiter failures let the request through.
func RateLimit(limiter Limiter, limit redis.Limit, logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			key := "ip:" + c.RealIP()
			if caller, ok := appctx.GetCaller(ctx); ok {
				key = "user:" + caller.UUID
			}

			result, err := limiter.Allow(ctx, key, limit)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("rate limiter unavailable, allowing request")
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Requests, 10))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				metrics.RateLimitedTotal.Inc()
				retry := int64(math.Ceil(result.RetryIn.Seconds()))
				if retry < 1 {
					retry = 1
				}
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				return httperror.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}
