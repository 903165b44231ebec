package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminAPIKeyAuth guards dashboard routes with a static key.
// Expects: Authorization: Bearer <api_key>
// An empty key leaves the routes open.
func AdminAPIKeyAuth(apiKey string, logger *slog.Logger) fiber.Handler {
	if apiKey == "" {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
				"code":  "UNAUTHORIZED",
			})
		}

		// Extract Bearer token
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <api_key>",
				"code":  "UNAUTHORIZED",
			})
		}

		providedKey := strings.TrimPrefix(authHeader, "Bearer ")

		// Constant-time comparison to prevent timing attacks
		if !secureCompare(providedKey, apiKey) {
			logger.Warn("Rejected admin request with invalid API key",
				slog.String("path", c.Path()),
				slog.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
				"code":  "UNAUTHORIZED",
			})
		}

		return c.Next()
	}
}

// secureCompare compares digests in constant time, so neither the content
// nor the length of the key leaks through timing.
func secureCompare(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
