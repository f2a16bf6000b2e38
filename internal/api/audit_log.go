package api

import (
	"github.com/gofiber/fiber/v2"

	"devsettings/internal/audit"
)

// AuditLog handles GET /api/0/sentry-apps/:slug/audit-logs/?limit=N
//
// Events are written in batches, so the newest changes can lag by one flush
// interval.
func (h *Handler) AuditLog(c *fiber.Ctx) error {
	_, app, err := h.resolveApp(c)
	if err != nil {
		return err
	}
	events, err := audit.List(c.UserContext(), h.store, app.Slug, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(events)
}
