package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "storepulse/api/v1"
	"storepulse/internal/http"
	"storepulse/internal/http/middleware"
)

// publicCORSConfig lets tracking scripts on any storefront origin post beacons.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes on the application's fiber app.
func MountAppRoutes(a *Application) {
	cfg := a.Config
	srv := a.Fiber
	h := a.Handlers

	srv.Use(recover.New())
	srv.Use(middleware.RequestMetrics())

	// ============================================
	// PUBLIC ENDPOINT PROTECTION
	// The beacon endpoint gets:
	// - Rate limiting (production only)
	// - CORS (permissive for cross-origin tracking)
	// ============================================

	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(rateLimiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return rateLimiter(c)
			}
			return c.Next()
		}
	}

	publicRateLimiter := conditionalRateLimiter(limiter.New(limiter.Config{
		Max:        cfg.RateLimitPerMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
				"code":  "RATE_LIMITED",
			})
		},
	}))
	publicCORS := cors.New(publicCORSConfig)

	adminAuth := middleware.AdminAPIKeyAuth(cfg.AdminAPIKey, a.Logger)

	// === ROOT ROUTES ===
	srv.Get("/_health", h.HealthIndexAction)
	srv.Head("/_health", h.HealthIndexAction)
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// === PUBLIC API ROUTES ===
	track := v1.NewTrackHandler(a.Ingest, a.Logger)
	srv.Post("/visitors/track", publicCORS, publicRateLimiter, track.TrackAction)
	srv.Options("/visitors/track", publicCORS, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	// === DASHBOARD ROUTES ===
	for _, name := range http.WindowWidgets {
		srv.Get("/visitors/"+name, adminAuth, h.WidgetAction(name))
	}
	srv.Get("/visitors/change", adminAuth, h.VisitorChangeAction)
	srv.Get("/visitors/activity", adminAuth, h.ActivityAction)
	srv.Get("/visitors/stream", adminAuth, h.StreamAction)
	srv.Get("/visitors/dashboard", adminAuth, h.DashboardAction)

	// === SETTINGS ROUTES ===
	srv.Get("/visitors/settings/excluded-ips", adminAuth, h.ExcludedIPsAction)
	srv.Put("/visitors/settings/excluded-ips", adminAuth, h.UpdateExcludedIPsAction)
}
