package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/observability"
)

const apiPrefix = "/api/"

// Observability records request metrics and one structured log line per API
// request. Prometheus scrapes of the metrics endpoint are not counted.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		path := c.Path()
		if !strings.HasPrefix(path, apiPrefix) || strings.HasSuffix(path, "/metrics") {
			return err
		}

		// Handler errors not yet written to the response still count as failures.
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := routeTemplate(c)
		method := c.Method()
		statusLabel := strconv.Itoa(status)

		observability.HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
		observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		var event *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Float64("latency_ms", float64(elapsed)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(elapsed)).
			Bool("authenticated", AuthenticatedCaller(c) != "").
			Msg("request completed")

		return err
	}
}

// routeTemplate keeps label cardinality bounded by preferring the route
// pattern ("/api/v1/task/:id") over the concrete path.
func routeTemplate(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return "unmatched"
}

func latencyBucket(elapsed time.Duration) string {
	bounds := []struct {
		limit time.Duration
		label string
	}{
		{100 * time.Millisecond, "<=100ms"},
		{500 * time.Millisecond, "<=500ms"},
		{2 * time.Second, "<=2s"},
		{10 * time.Second, "<=10s"},
	}
	for _, b := range bounds {
		if elapsed <= b.limit {
			return b.label
		}
	}
	return ">10s"
}
