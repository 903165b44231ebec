package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/internal/http/middleware"
)

func TestRequestMetricsLabelsSurviveBufferReuse(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.RequestMetrics())
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/metrics-test/items", ok)
	app.Put("/metrics-test/items", ok)
	app.Post("/metrics-test/items", ok)
	app.Delete("/metrics-test/items/:id", ok)

	requests := []struct{ method, path string }{
		{fiber.MethodPut, "/metrics-test/items"},
		{fiber.MethodGet, "/metrics-test/items"},
		{fiber.MethodPost, "/metrics-test/items"},
		{fiber.MethodDelete, "/metrics-test/items/7"},
		{fiber.MethodGet, "/metrics-test/items"},
		{fiber.MethodPut, "/metrics-test/items"},
	}
	for i := 0; i < 3; i++ {
		for _, r := range requests {
			resp, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
		}
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "duplicate series make the registry unusable")

	seen := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "storepulse_http_request_duration_seconds" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["route"] == "/metrics-test/items" || labels["route"] == "/metrics-test/items/:id" {
				key := labels["method"] + " " + labels["route"]
				assert.False(t, seen[key], "series %s reported twice", key)
				seen[key] = true
			}
		}
	}
	assert.Equal(t, map[string]bool{
		"GET /metrics-test/items":        true,
		"PUT /metrics-test/items":        true,
		"POST /metrics-test/items":       true,
		"DELETE /metrics-test/items/:id": true,
	}, seen)
}
