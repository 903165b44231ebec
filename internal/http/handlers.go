// Package http serves the dashboard API: widget queries, the live stream,
// settings and health.
package http

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"storepulse/internal/analytics"
	"storepulse/internal/database"
	"storepulse/internal/live"
	"storepulse/internal/settings"
	"storepulse/internal/timeframe"
)

const (
	errFetchAnalytics = "Failed to fetch analytics"
	codeQueryError    = "QUERY_ERROR"
	codeInvalidRange  = "INVALID_TIME_RANGE"
)

const (
	defaultKeepAlive   = 25 * time.Second
	defaultPoolWorkers = 4
)

// Handlers holds the dependencies of the dashboard routes.
type Handlers struct {
	Analytics   *analytics.Service
	Parser      *timeframe.TimeFrameParser
	Hub         *live.Hub
	DBManager   *database.DBManager
	ExcludedIPs *settings.ExcludedIPs
	Logger      *slog.Logger

	// KeepAlive is the interval between stream keepalive comments.
	KeepAlive time.Duration
	// PoolWorkers bounds the dashboard bundle's parallel queries.
	PoolWorkers int
}

func (h *Handlers) keepAlive() time.Duration {
	if h.KeepAlive <= 0 {
		return defaultKeepAlive
	}
	return h.KeepAlive
}

func (h *Handlers) poolWorkers() int {
	if h.PoolWorkers <= 0 {
		return defaultPoolWorkers
	}
	return h.PoolWorkers
}

// parseWindow reads the timeRange query parameter.
func (h *Handlers) parseWindow(c *fiber.Ctx) (timeframe.Window, error) {
	return h.Parser.Parse(c.Query("timeRange"))
}

func invalidRange(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"code":  codeInvalidRange,
	})
}

func (h *Handlers) queryError(c *fiber.Ctx, widget string, err error) error {
	h.Logger.Error("Failed to fetch analytics",
		slog.String("widget", widget),
		slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": errFetchAnalytics,
		"code":  codeQueryError,
	})
}

// windowError maps a parse error to a response.
func (h *Handlers) windowError(c *fiber.Ctx, err error) error {
	if errors.Is(err, timeframe.ErrInvalidTimeRange) {
		return invalidRange(c, err)
	}
	return h.queryError(c, "window", err)
}
