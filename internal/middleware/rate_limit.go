package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/proprep-api/internal/utils"
)

// RateLimit allows max requests per window for each caller and interview
// session. The caller is the token subject, or the client IP when the route
// is public.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	retryAfter := strconv.Itoa(int(window.Round(time.Second) / time.Second))

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := UserID(c)
			if caller == "" {
				caller = c.IP()
			}
			parts := []string{identifier, caller}
			if session := c.Params("id"); session != "" {
				parts = append(parts, session)
			}
			return strings.Join(parts, ":")
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many answers submitted, slow down", fiber.Map{
				"limit":  max,
				"window": window.String(),
			})
		},
	})
}
