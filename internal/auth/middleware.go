package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"devsettings/internal/api"
)

// Middleware authenticates "Authorization: Bearer <jwt>" and stores the
// caller as an *api.UserContext under Locals("user").
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return api.UnauthorizedError("Authentication credentials were not provided.")
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			return api.UnauthorizedError("Invalid auth header format")
		}
		claims, err := ParseAccessToken(raw, secret)
		if err != nil {
			return api.UnauthorizedError("Invalid or expired token")
		}
		c.Locals("user", &api.UserContext{
			ID:           claims.Subject,
			Organization: claims.Organization,
			Roles:        claims.Roles,
			Scopes:       claims.Scopes,
		})
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after
// Middleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch user := api.GetUser(c); {
		case user == nil:
			return api.UnauthorizedError("Authentication credentials were not provided.")
		case !user.IsAdmin():
			return api.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}
