package middleware

import (
	"log/slog"
	"math"
	"strconv"

	"kanbanhub/internal/api/response"
	"kanbanhub/internal/apperr"
	"kanbanhub/internal/pkg/metrics"
	"kanbanhub/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit 按客户端 IP 限流。限流器本身出错时放行并记录日志。
func RateLimit(limiter ratelimit.Limiter, scope string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		res, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("scope", scope),
					slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !res.Allowed {
			metrics.RateLimitRejectedTotal.WithLabelValues(scope).Inc()
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			response.Abort(c, apperr.TooManyRequests("Too many authentication attempts. Please try again later."))
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}
