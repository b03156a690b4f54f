package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestLatencyBucket(t *testing.T) {
	cases := map[time.Duration]string{
		20 * time.Millisecond:  "<=100ms",
		300 * time.Millisecond: "<=500ms",
		2 * time.Second:        "<=2s",
		9 * time.Second:        "<=10s",
		45 * time.Second:       ">10s",
	}
	for elapsed, want := range cases {
		require.Equal(t, want, latencyBucket(elapsed), elapsed.String())
	}
}

func TestRouteTemplateUsesPattern(t *testing.T) {
	app := fiber.New()
	var seen string
	app.Get("/api/v1/task/:id", func(c *fiber.Ctx) error {
		seen = routeTemplate(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/task/42", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "/api/v1/task/:id", seen)
}
