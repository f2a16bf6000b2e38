package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"devsettings/internal/api"
	"devsettings/internal/logger"
	"devsettings/internal/store"
)

// Handler handles authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
	ttl       time.Duration
}

// NewHandler creates a new Handler. A zero ttl uses AccessTokenTTL.
func NewHandler(s *store.Store, jwtSecret string, ttl time.Duration) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret, ttl: ttl}
}

// Login handles POST /api/0/auth/login/.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.InvalidPayloadError()
	}
	if body.Email == "" || body.Password == "" {
		return api.UnauthorizedError("Email and password are required")
	}

	user, err := store.FindUserByEmail(c.UserContext(), h.store, body.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.From(c.UserContext()).Error("login lookup failed", zap.Error(err))
		}
		return api.UnauthorizedError("Invalid email or password")
	}
	if !user.Active {
		return api.UnauthorizedError("Account is disabled")
	}
	if !CheckPassword(body.Password, user.PasswordHash) {
		return api.UnauthorizedError("Invalid email or password")
	}

	token, err := GenerateAccessToken(Principal{
		UserID:       user.ID,
		Organization: user.Organization,
		Roles:        user.Roles,
		Scopes:       user.Scopes,
	}, h.jwtSecret, h.ttl)
	if err != nil {
		return api.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	return c.JSON(fiber.Map{"token": token, "organization": user.Organization, "scopes": user.Scopes})
}

// Me handles GET /api/0/auth/me/. Scopes come from the database, so they
// reflect changes made after the token was issued.
func (h *Handler) Me(c *fiber.Ctx) error {
	caller := api.GetUser(c)
	if caller == nil {
		return api.UnauthorizedError("Authentication credentials were not provided.")
	}
	user, err := store.FindUserByID(c.UserContext(), h.store, caller.ID)
	if errors.Is(err, store.ErrNotFound) {
		return api.UnauthorizedError("Account no longer exists")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":           user.ID,
		"email":        user.Email,
		"organization": user.Organization,
		"roles":        user.Roles,
		"scopes":       user.Scopes,
	})
}

// RegisterRoutes mounts login, and the current-user endpoint behind mw.
func RegisterRoutes(r fiber.Router, h *Handler, mw ...fiber.Handler) {
	r.Post("/auth/login/", h.Login)
	r.Get("/auth/me/", append(append([]fiber.Handler{}, mw...), h.Me)...)
}
