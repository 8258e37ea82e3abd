package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adreel/api/pkg/response"
)

type RateLimiter struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		logger: logger.With(zap.String("component", "ratelimit")),
	}
}

// Limit allows maxRequests per window per caller. A caller is the
// authenticated user, else the caller-supplied key, else the client IP.
// maxRequests <= 0 disables the limit.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, callerID(c))
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(maxRequests-int(count)))

		return c.Next()
	}
}

// ImageLimit limits image generation requests per hour
func (rl *RateLimiter) ImageLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("image", maxPerHour, time.Hour)
}

// VideoLimit limits video ad requests per hour
func (rl *RateLimiter) VideoLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("video", maxPerHour, time.Hour)
}

func callerID(c *fiber.Ctx) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	if APIKeyFromRequest(c) {
		return "key:" + keyFingerprint(GetAPIKey(c))
	}
	return "ip:" + c.IP()
}
