package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"storepulse/internal/settings"
)

// ExcludedIPsPayload is the body of the excluded IPs endpoints. Entries are
// single addresses or CIDR ranges.
type ExcludedIPsPayload struct {
	IPs []string `json:"ips"`
}

// ExcludedIPsAction returns the excluded IP list.
func (h *Handlers) ExcludedIPsAction(c *fiber.Ctx) error {
	ips, err := h.ExcludedIPs.List(c.UserContext())
	if err != nil {
		h.Logger.Error("failed to load excluded_ips setting", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load settings",
			"code":  "SETTINGS_ERROR",
		})
	}
	return c.JSON(ExcludedIPsPayload{IPs: ips})
}

// UpdateExcludedIPsAction replaces the excluded IP list.
func (h *Handlers) UpdateExcludedIPsAction(c *fiber.Ctx) error {
	var payload ExcludedIPsPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request",
		})
	}

	stored, err := h.ExcludedIPs.Replace(c.UserContext(), payload.IPs)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidIP) {
			h.Logger.Warn("invalid IP format submitted", slog.String("error", err.Error()))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "INVALID_IP",
			})
		}
		h.Logger.Error("failed to update excluded_ips setting", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update settings",
			"code":  "SETTINGS_ERROR",
		})
	}

	h.Logger.Info("excluded IPs updated", slog.Int("count", len(stored)))
	if stored == nil {
		stored = []string{}
	}
	return c.JSON(ExcludedIPsPayload{IPs: stored})
}
