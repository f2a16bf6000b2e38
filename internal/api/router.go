package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the integration endpoints under r, which is expected
// to be the /api/0 group. Every route but avatar images goes through mw (auth).
func RegisterRoutes(r fiber.Router, h *Handler, mw ...fiber.Handler) {
	r.Get("/sentry-app-avatar/:uuid", h.ServeAvatar)

	apps := r.Group("/sentry-apps", mw...)

	apps.Get("/", h.List)
	apps.Post("/", h.Create)
	apps.Get("/:slug", h.Get)
	apps.Put("/:slug", h.Update)
	apps.Delete("/:slug", h.Delete)
	apps.Put("/:slug/avatar", h.SetAvatar)
	apps.Post("/:slug/avatar", h.UploadAvatar)

	apps.Get("/:slug/api-tokens", h.ListTokens)
	apps.Post("/:slug/api-tokens", h.AddToken)
	apps.Delete("/:slug/api-tokens/:token", h.RemoveToken)
}

// RegisterAuditRoutes mounts the per-integration audit log behind guard. Call
// it after RegisterRoutes so the sentry-apps group authenticates first.
func RegisterAuditRoutes(r fiber.Router, h *Handler, guard ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guard...), h.AuditLog)
	r.Get("/sentry-apps/:slug/audit-logs", handlers...)
}
