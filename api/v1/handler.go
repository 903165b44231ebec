package v1

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"storepulse/internal/events"
	"storepulse/internal/ingest"
)

const (
	errInvalidRequest = "Invalid request"
	errTrackingFailed = "Failed to track visitor"
	codeTrackingError = "TRACKING_ERROR"
)

// TrackParams is the JSON body sent by the tracking script.
type TrackParams struct {
	Path         string          `json:"path"`
	Referrer     string          `json:"referrer"`
	EventType    string          `json:"eventType"`
	EventData    json.RawMessage `json:"eventData"`
	VisitorID    string          `json:"visitorId"`
	UTMSource    string          `json:"utmSource"`
	UTMMedium    string          `json:"utmMedium"`
	UTMCampaign  string          `json:"utmCampaign"`
	UTMTerm      string          `json:"utmTerm"`
	UTMContent   string          `json:"utmContent"`
	ScreenWidth  int             `json:"screenWidth"`
	ScreenHeight int             `json:"screenHeight"`
	Language     string          `json:"language"`
	Timezone     string          `json:"timezone"`
	Webdriver    bool            `json:"webdriver"`
}

// Tracker is the ingest pipeline behind the track endpoint.
type Tracker interface {
	Track(ctx context.Context, b ingest.Beacon) (ingest.Outcome, error)
}

// TrackHandler serves POST /visitors/track.
type TrackHandler struct {
	tracker Tracker
	logger  *slog.Logger
}

// NewTrackHandler creates the handler.
func NewTrackHandler(tracker Tracker, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{tracker: tracker, logger: logger}
}

// TrackAction records one beacon. The body is read as JSON whatever the
// content type, since navigator.sendBeacon posts text/plain.
func (h *TrackHandler) TrackAction(c *fiber.Ctx) error {
	var params TrackParams
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		h.logger.Debug("Failed to parse track request", slog.Any("error", err))
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": errInvalidRequest,
		})
	}

	userAgent := c.Get("User-Agent")
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}

	beacon := ingest.Beacon{
		Path:      params.Path,
		Referrer:  params.Referrer,
		EventType: params.EventType,
		EventData: params.EventData,
		VisitorID: params.VisitorID,
		UTM: events.UTM{
			Source:   params.UTMSource,
			Medium:   params.UTMMedium,
			Campaign: params.UTMCampaign,
			Term:     params.UTMTerm,
			Content:  params.UTMContent,
		},
		ScreenWidth:  params.ScreenWidth,
		ScreenHeight: params.ScreenHeight,
		Language:     params.Language,
		Timezone:     params.Timezone,
		Webdriver:    params.Webdriver,
		UserAgent:    userAgent,
		IP:           getClientIP(c),
	}

	outcome, err := h.tracker.Track(c.UserContext(), beacon)
	if err != nil {
		h.logger.Error("Failed to track visitor", slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": errTrackingFailed,
			"code":  codeTrackingError,
		})
	}

	if outcome.Skipped {
		h.logger.Debug("Skipped beacon",
			slog.String("reason", outcome.Reason),
			slog.String("path", params.Path))
		return c.JSON(fiber.Map{
			"success": true,
			"skipped": true,
			"reason":  outcome.Reason,
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
