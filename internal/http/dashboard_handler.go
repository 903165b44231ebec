package http

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"storepulse/internal/pkg/async"
	"storepulse/internal/timeframe"
)

// Widget names, shared by the per-widget routes and the dashboard bundle.
const (
	WidgetOverview     = "overview"
	WidgetTimeline     = "timeline"
	WidgetDevices      = "devices"
	WidgetGeographic   = "geographic"
	WidgetReferrers    = "referrers"
	WidgetPages        = "pages"
	WidgetEcommerce    = "ecommerce"
	WidgetBots         = "bots"
	WidgetInteractions = "interactions"
	WidgetChange       = "change"
)

// WindowWidgets are the widgets served under /visitors/<name>?timeRange=.
var WindowWidgets = []string{
	WidgetOverview,
	WidgetTimeline,
	WidgetDevices,
	WidgetGeographic,
	WidgetReferrers,
	WidgetPages,
	WidgetEcommerce,
	WidgetBots,
	WidgetInteractions,
}

type widgetFunc func(ctx context.Context, w timeframe.Window) (interface{}, error)

// DashboardResponse is the dashboard bundle.
type DashboardResponse struct {
	TimeRange timeframe.Range        `json:"timeRange"`
	Widgets   map[string]interface{} `json:"widgets"`
	Errors    map[string]string      `json:"errors"`
}

func (h *Handlers) widgets() map[string]widgetFunc {
	return map[string]widgetFunc{
		WidgetOverview: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Overview(ctx, w)
		},
		WidgetTimeline: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Timeline(ctx, w)
		},
		WidgetDevices: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Devices(ctx, w)
		},
		WidgetGeographic: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Geographic(ctx, w)
		},
		WidgetReferrers: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Referrers(ctx, w)
		},
		WidgetPages: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Pages(ctx, w)
		},
		WidgetEcommerce: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Ecommerce(ctx, w)
		},
		WidgetBots: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Bots(ctx, w)
		},
		WidgetInteractions: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.Interactions(ctx, w)
		},
		WidgetChange: func(ctx context.Context, w timeframe.Window) (interface{}, error) {
			return h.Analytics.VisitorChange(ctx, w)
		},
	}
}

// WidgetAction serves one widget for the requested timeRange.
func (h *Handlers) WidgetAction(name string) fiber.Handler {
	fetch, ok := h.widgets()[name]
	if !ok {
		panic(fmt.Sprintf("http: unknown widget %q", name))
	}

	return func(c *fiber.Ctx) error {
		w, err := h.parseWindow(c)
		if err != nil {
			return h.windowError(c, err)
		}

		data, err := fetch(c.UserContext(), w)
		if err != nil {
			return h.queryError(c, name, err)
		}
		return c.JSON(data)
	}
}

// VisitorChangeAction compares today with the 30 day average. timeRange is ignored.
func (h *Handlers) VisitorChangeAction(c *fiber.Ctx) error {
	change, err := h.Analytics.VisitorChange(c.UserContext(), h.Parser.Today())
	if err != nil {
		return h.queryError(c, WidgetChange, err)
	}
	return c.JSON(change)
}

// ActivityAction returns the newest raw events.
func (h *Handlers) ActivityAction(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	feed, err := h.Analytics.RecentActivity(c.UserContext(), limit)
	if err != nil {
		return h.queryError(c, "activity", err)
	}
	return c.JSON(feed)
}

// DashboardAction runs the requested widgets in parallel. A failing widget is
// reported under errors and does not blank the others.
func (h *Handlers) DashboardAction(c *fiber.Ctx) error {
	w, err := h.parseWindow(c)
	if err != nil {
		return h.windowError(c, err)
	}

	available := h.widgets()
	names, err := requestedWidgets(c.Query("widgets"), available)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "INVALID_WIDGET",
		})
	}

	tasks := make([]async.Task, 0, len(names))
	for _, name := range names {
		fetch := available[name]
		tasks = append(tasks, async.Task{
			Name: name,
			Execute: func(ctx context.Context) (interface{}, error) {
				return fetch(ctx, w)
			},
		})
	}

	pool := async.NewPool(h.poolWorkers())
	results := pool.Execute(c.UserContext(), tasks)

	resp := DashboardResponse{
		TimeRange: w.Range,
		Widgets:   make(map[string]interface{}, len(names)),
		Errors:    make(map[string]string),
	}
	for _, name := range names {
		result, ok := results[name]
		switch {
		case !ok:
			resp.Errors[name] = errFetchAnalytics
			h.Logger.Warn("Dashboard widget did not finish", slog.String("widget", name))
		case result.Err != nil:
			resp.Errors[name] = errFetchAnalytics
			h.Logger.Error("Error fetching dashboard widget",
				slog.String("widget", name),
				slog.Any("error", result.Err))
		default:
			resp.Widgets[name] = result.Data
		}
	}

	return c.JSON(resp)
}

// requestedWidgets parses a comma separated widget list. Empty means all.
func requestedWidgets(raw string, available map[string]widgetFunc) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		names := make([]string, 0, len(available))
		for name := range available {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		if _, ok := available[name]; !ok {
			return nil, fmt.Errorf("unknown widget: %s", name)
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no widgets requested")
	}
	return names, nil
}
