package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// WebhookRateLimit caps deliveries per remote IP. Providers retry with
// backoff, so a legitimate sender never comes close to this ceiling.
func (r *RateLimiter) WebhookRateLimit(maxPerMinute int64) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ip := e.RealIP()
		key := fmt.Sprintf("ratelimit:webhook:%s", ip)

		count, err := r.redis.Incr(e.Request.Context(), key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(e.Request.Context(), key, time.Minute)
			}
			if count > maxPerMinute {
				return e.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests",
				})
			}
		}

		return e.Next()
	}
}

// AntiBot rejects obvious scripted traffic on the buyer-facing endpoints.
func (r *RateLimiter) AntiBot() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		userAgent := e.Request.Header.Get("User-Agent")
		if isSuspiciousUserAgent(userAgent) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}

		return e.Next()
	}
}

func isSuspiciousUserAgent(userAgent string) bool {
	if userAgent == "" {
		return true
	}

	suspicious := []string{"curl", "wget", "python-requests", "scrapy", "bot", "spider"}
	lowered := strings.ToLower(userAgent)
	for _, pattern := range suspicious {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}

	return false
}
