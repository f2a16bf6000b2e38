package api

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID           string   `json:"id"`
	Organization string   `json:"organization"`
	Roles        []string `json:"roles"`
	Scopes       []string `json:"scopes"`
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole("admin")
}

// HasScopes reports whether the user holds every scope in scopes.
func (u *UserContext) HasScopes(scopes []string) bool {
	held := make(map[string]bool, len(u.Scopes))
	for _, s := range u.Scopes {
		held[s] = true
	}
	for _, s := range scopes {
		if !held[s] {
			return false
		}
	}
	return true
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *UserContext {
	user, _ := c.Locals("user").(*UserContext)
	return user
}
