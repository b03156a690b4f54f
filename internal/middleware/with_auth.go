package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codegrade-api/internal/utils"
)

// RequireCaller wraps a handler that cannot run without a caller identity,
// either from a bearer token or the ownerId query parameter.
func RequireCaller(handler fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CallerID(c) == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "caller identity required", fiber.Map{"field": "ownerId"})
		}
		return handler(c)
	}
}
