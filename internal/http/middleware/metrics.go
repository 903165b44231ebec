package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"storepulse/internal/metrics"
)

// RequestMetrics records request durations by route pattern and the number
// of requests in flight.
func RequestMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		// The pattern keeps label cardinality bounded. Labels outlive the
		// request, so they must not alias fasthttp's reused buffers.
		method := utils.CopyString(c.Method())
		route := utils.CopyString(c.Route().Path)
		metrics.HTTPRequestDuration.
			WithLabelValues(method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		return err
	}
}
