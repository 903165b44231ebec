package middleware_test

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/http/middleware"
)

func TestAdminAPIKeyAuth(t *testing.T) {
	newApp := func(key string) *fiber.App {
		app := fiber.New()
		app.Get("/admin", middleware.AdminAPIKeyAuth(key, slog.New(slog.DiscardHandler)), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})
		return app
	}

	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{"no key configured", "", "", fiber.StatusOK},
		{"missing header", "s3cret-key", "", fiber.StatusUnauthorized},
		{"not a bearer token", "s3cret-key", "Basic s3cret-key", fiber.StatusUnauthorized},
		{"wrong key same length", "s3cret-key", "Bearer s3cret-kez", fiber.StatusUnauthorized},
		{"wrong key shorter", "s3cret-key", "Bearer s3cret", fiber.StatusUnauthorized},
		{"wrong key longer", "s3cret-key", "Bearer s3cret-key-and-more", fiber.StatusUnauthorized},
		{"valid key", "s3cret-key", "Bearer s3cret-key", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := newApp(tt.key).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
