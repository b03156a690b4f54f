package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CallerID returns the authenticated subject when a bearer token was
// presented, otherwise the ownerId query parameter.
func CallerID(c *fiber.Ctx) string {
	if subject := AuthenticatedCaller(c); subject != "" {
		return subject
	}
	return strings.TrimSpace(c.Query("ownerId"))
}

// AuthenticatedCaller returns the token subject, or "" for anonymous requests.
func AuthenticatedCaller(c *fiber.Ctx) string {
	if value, ok := c.Locals(CallerLocal).(string); ok {
		return value
	}
	return ""
}
