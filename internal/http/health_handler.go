package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	DBStatus        string    `json:"db_status"`
	LiveSubscribers int       `json:"live_subscribers"`
}

// HealthIndexAction handles the health check endpoint
func (h *Handlers) HealthIndexAction(c *fiber.Ctx) error {
	dbStatus := "ok"

	// Check database connectivity
	if h.DBManager == nil {
		dbStatus = "error"
		h.Logger.Error("Database connection unavailable")
	} else if err := h.DBManager.Ping(c.UserContext()); err != nil {
		dbStatus = "error"
		h.Logger.Error("Database ping failed", slog.Any("error", err))
	}

	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		DBStatus:  dbStatus,
	}
	if h.Hub != nil {
		health.LiveSubscribers = h.Hub.Count()
	}

	if dbStatus != "ok" {
		health.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}

	return c.JSON(health)
}
