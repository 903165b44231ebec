package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Stream event names.
const (
	EventSnapshot        = "snapshot"
	EventVisitorsChanged = "visitors-changed"
)

var changedPayload = []byte(`{"type":"new_event"}`)

// StreamAction serves the live activity stream as Server-Sent Events. The
// client first receives today's snapshot, then one visitors-changed event per
// stored beacon, and a keepalive comment while idle.
func (h *Handlers) StreamAction(c *fiber.Ctx) error {
	// Subscribe before reading the snapshot so no change between the two is lost.
	sub := h.Hub.Subscribe()

	snapshot, err := h.Analytics.TodaySnapshot(c.UserContext(), h.Parser.Today())
	if err != nil {
		sub.Close()
		return h.queryError(c, "snapshot", err)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		sub.Close()
		return h.queryError(c, "snapshot", err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.Logger
	keepAlive := h.keepAlive()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		if err := writeEvent(w, EventSnapshot, payload); err != nil {
			logger.Debug("Live client gone before snapshot", slog.Any("error", err))
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case _, ok := <-sub.C:
				if !ok {
					// Hub closed on shutdown.
					return
				}
				if err := writeEvent(w, EventVisitorsChanged, changedPayload); err != nil {
					logger.Debug("Live client disconnected", slog.Any("error", err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					logger.Debug("Live client disconnected", slog.Any("error", err))
					return
				}
			}
		}
	}))

	return nil
}

func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
