package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyMiddleware replays the response of a mutating request that was
// already served for the same X-Correlation-ID. Keys are scoped per user, so
// it must run after VerifyToken. A double-tapped "set done" button thus
// records one set.
func IdempotencyMiddleware(redisClient *redis.Client, ttl time.Duration, log *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Only apply to mutating methods
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPatch &&
			c.Method() != fiber.MethodPut && c.Method() != fiber.MethodDelete {
			return c.Next()
		}

		correlationID := c.Get("X-Correlation-ID")
		if correlationID == "" {
			// No correlation ID = no idempotency check
			return c.Next()
		}

		key := fmt.Sprintf("idempotency:%s:%s:%s", UserID(c), c.Method(), correlationID)
		ctx := c.UserContext()

		cached, err := redisClient.Get(ctx, key).Bytes()
		if err == nil && len(cached) > 0 {
			var resp cachedResponse
			if json.Unmarshal(cached, &resp) == nil {
				c.Set("X-Idempotent-Replay", "true")
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(resp.Status).Send(resp.Body)
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		// Cache successful responses (2xx status codes)
		statusCode := c.Response().StatusCode()
		if statusCode < 200 || statusCode >= 300 {
			return nil
		}

		data, err := json.Marshal(cachedResponse{
			Status: statusCode,
			Body:   append([]byte(nil), c.Response().Body()...),
		})
		if err != nil {
			return nil
		}

		setCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Set(setCtx, key, data, ttl).Err(); err != nil {
			log.WithError(err).WithField("key", key).Warn("failed to store idempotent response")
		}

		return nil
	}
}
