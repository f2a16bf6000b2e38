package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"devsettings/internal/audit"
	"devsettings/internal/logger"
	"devsettings/internal/metrics"
	"devsettings/internal/permissions"
	"devsettings/internal/sentryapp"
	"devsettings/internal/storage"
	"devsettings/internal/store"
)

// Handler serves the integration registration endpoints.
type Handler struct {
	store    *store.Store
	catalog  permissions.Catalog
	recorder audit.Recorder
	avatars  *storage.LocalStorage
}

// NewHandler creates a Handler. A nil recorder discards audit events; nil
// avatars disables uploads.
func NewHandler(s *store.Store, cat permissions.Catalog, rec audit.Recorder, avatars *storage.LocalStorage) *Handler {
	if rec == nil {
		rec = audit.Noop{}
	}
	return &Handler{store: s, catalog: cat, recorder: rec, avatars: avatars}
}

// appRequest is the create/update payload. Nil fields are left untouched on
// update. Unknown keys sent by the form (clientId, status, ...) are ignored.
type appRequest struct {
	Name          *string        `json:"name"`
	Author        *string        `json:"author"`
	Overview      *string        `json:"overview"`
	Organization  string         `json:"organization"`
	IsInternal    *bool          `json:"isInternal"`
	Scopes        []string       `json:"scopes"`
	Events        []string       `json:"events"`
	WebhookURL    *string        `json:"webhookUrl"`
	RedirectURL   *string        `json:"redirectUrl"`
	IsAlertable   *bool          `json:"isAlertable"`
	VerifyInstall *bool          `json:"verifyInstall"`
	Schema        map[string]any `json:"schema"`
}

func (r *appRequest) apply(app *sentryapp.SentryApp) {
	if r.Name != nil {
		app.Name = *r.Name
	}
	if r.Author != nil {
		app.Author = *r.Author
	}
	if r.Overview != nil {
		app.Overview = *r.Overview
	}
	if r.Scopes != nil {
		app.Scopes = r.Scopes
	}
	if r.Events != nil {
		app.Events = sentryapp.NormalizeEvents(r.Events)
	}
	if r.WebhookURL != nil {
		app.WebhookURL = *r.WebhookURL
	}
	if r.RedirectURL != nil {
		app.RedirectURL = *r.RedirectURL
	}
	if r.IsAlertable != nil {
		app.IsAlertable = *r.IsAlertable
	}
	if r.VerifyInstall != nil {
		app.VerifyInstall = *r.VerifyInstall
	}
	if r.Schema != nil {
		app.Schema = r.Schema
	}
	if app.IsInternal() {
		app.VerifyInstall = false
	}
}

// List handles GET /api/0/sentry-apps/
func (h *Handler) List(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	apps, err := store.ListApps(c.UserContext(), h.store, user.Organization)
	if err != nil {
		return err
	}
	out := make([]*sentryapp.SentryApp, len(apps))
	for i, app := range apps {
		out[i] = present(app, user)
	}
	return c.JSON(out)
}

// Get handles GET /api/0/sentry-apps/:slug/
func (h *Handler) Get(c *fiber.Ctx) error {
	user, app, err := h.resolveApp(c)
	if err != nil {
		return err
	}
	return c.JSON(present(app, user))
}

// Create handles POST /api/0/sentry-apps/
func (h *Handler) Create(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return err
	}
	var req appRequest
	if err := c.BodyParser(&req); err != nil {
		return InvalidPayloadError()
	}
	if req.Organization != "" && req.Organization != user.Organization {
		return ForbiddenError("You do not have permission to perform this action.")
	}

	app := &sentryapp.SentryApp{
		Status:        sentryapp.StatusUnpublished,
		Organization:  user.Organization,
		Scopes:        []string{},
		Events:        []string{},
		Schema:        map[string]any{},
		Avatars:       []sentryapp.Avatar{},
		VerifyInstall: true,
	}
	if req.IsInternal != nil && *req.IsInternal {
		app.Status = sentryapp.StatusInternal
	}
	req.apply(app)

	if err := h.validate(app, user); err != nil {
		return err
	}

	app.UUID = uuid.NewString()
	app.Slug = sentryapp.Slugify(app.Name)
	app.ClientID = randomHex(32)
	app.ClientSecret = randomHex(32)

	ctx := c.UserContext()
	if err := store.CreateApp(ctx, h.store, app); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return ValidationError(map[string][]string{
				"name": {fmt.Sprintf("Name %s is already taken, please use another.", app.Name)},
			})
		}
		return fmt.Errorf("create app: %w", err)
	}

	// Internal integrations start with one token so they are usable at once.
	if app.IsInternal() {
		if _, err := h.mintToken(c, app, user); err != nil {
			return err
		}
	}

	h.recorder.Record(ctx, audit.AppCreated, app.Slug, user.ID, map[string]any{"status": app.Status})
	logger.From(ctx).Info("integration created", zap.String("slug", app.Slug), zap.String("status", app.Status))
	return c.Status(fiber.StatusCreated).JSON(present(app, user))
}

// Update handles PUT /api/0/sentry-apps/:slug/
func (h *Handler) Update(c *fiber.Ctx) error {
	user, app, err := h.resolveApp(c)
	if err != nil {
		return err
	}
	var req appRequest
	if err := c.BodyParser(&req); err != nil {
		return InvalidPayloadError()
	}

	if app.Status == sentryapp.StatusPublished && req.Scopes != nil && !sameScopes(app.Scopes, req.Scopes) {
		return ValidationError(map[string][]string{
			"scopes": {"Cannot update permissions on a published integration."},
		})
	}
	req.apply(app)

	if err := h.validate(app, user); err != nil {
		return err
	}

	ctx := c.UserContext()
	if err := store.UpdateApp(ctx, h.store, app); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("Integration")
		}
		return fmt.Errorf("update app %s: %w", app.Slug, err)
	}

	h.recorder.Record(ctx, audit.AppUpdated, app.Slug, user.ID, nil)
	return c.JSON(present(app, user))
}

// Delete handles DELETE /api/0/sentry-apps/:slug/
func (h *Handler) Delete(c *fiber.Ctx) error {
	user, app, err := h.resolveApp(c)
	if err != nil {
		return err
	}
	if app.Status == sentryapp.StatusPublished {
		return ForbiddenError("Published integrations cannot be removed.")
	}

	ctx := c.UserContext()
	if err := store.DeleteApp(ctx, h.store, app.UUID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("Integration")
		}
		return fmt.Errorf("delete app %s: %w", app.Slug, err)
	}
	h.removeImages(ctx, app.UploadIDs()...)

	h.recorder.Record(ctx, audit.AppDeleted, app.Slug, user.ID, nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTokens handles GET /api/0/sentry-apps/:slug/api-tokens/
func (h *Handler) ListTokens(c *fiber.Ctx) error {
	user, app, err := h.resolveInternalApp(c)
	if err != nil {
		return err
	}
	tokens, err := store.ListTokens(c.UserContext(), h.store, app.UUID)
	if err != nil {
		return err
	}
	if !user.HasScopes(app.Scopes) {
		for _, tok := range tokens {
			tok.Token = sentryapp.MaskedSecret
		}
	}
	return c.JSON(tokens)
}

// AddToken handles POST /api/0/sentry-apps/:slug/api-tokens/
func (h *Handler) AddToken(c *fiber.Ctx) error {
	user, app, err := h.resolveInternalApp(c)
	if err != nil {
		return err
	}
	tok, err := h.mintToken(c, app, user)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(tok)
}

// RemoveToken handles DELETE /api/0/sentry-apps/:slug/api-tokens/:token/
func (h *Handler) RemoveToken(c *fiber.Ctx) error {
	user, app, err := h.resolveInternalApp(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if err := store.RemoveToken(ctx, h.store, app.UUID, c.Params("token")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("Token")
		}
		return fmt.Errorf("remove token: %w", err)
	}
	metrics.TokenOperations.WithLabelValues("revoke").Inc()
	h.recorder.Record(ctx, audit.TokenRevoked, app.Slug, user.ID, nil)
	return c.SendStatus(fiber.StatusNoContent)
}

// --- helpers ---

func (h *Handler) mintToken(c *fiber.Ctx, app *sentryapp.SentryApp, user *UserContext) (*sentryapp.APIToken, error) {
	ctx := c.UserContext()
	tok := &sentryapp.APIToken{Token: randomHex(32), Scopes: slices.Clone(app.Scopes)}
	if err := store.AddToken(ctx, h.store, app.UUID, tok); err != nil {
		return nil, fmt.Errorf("add token: %w", err)
	}
	metrics.TokenOperations.WithLabelValues("create").Inc()
	h.recorder.Record(ctx, audit.TokenCreated, app.Slug, user.ID, nil)
	return tok, nil
}

func (h *Handler) validate(app *sentryapp.SentryApp, user *UserContext) error {
	err := sentryapp.Validate(app, user.Scopes, h.catalog)
	fields := sentryapp.FieldErrors(err)
	if app.Name != "" && sentryapp.Slugify(app.Name) == "" {
		if fields == nil {
			fields = map[string][]string{}
		}
		fields["name"] = append(fields["name"], "Name must contain at least one letter or digit.")
	}
	if len(fields) > 0 {
		return ValidationError(fields)
	}
	return nil
}

// resolveApp loads the app named by :slug. Apps of other organizations are
// reported as missing.
func (h *Handler) resolveApp(c *fiber.Ctx) (*UserContext, *sentryapp.SentryApp, error) {
	user, err := requireUser(c)
	if err != nil {
		return nil, nil, err
	}
	app, err := store.GetApp(c.UserContext(), h.store, c.Params("slug"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, NotFoundError("Integration")
		}
		return nil, nil, err
	}
	if app.Organization != user.Organization {
		return nil, nil, NotFoundError("Integration")
	}
	return user, app, nil
}

func (h *Handler) resolveInternalApp(c *fiber.Ctx) (*UserContext, *sentryapp.SentryApp, error) {
	user, app, err := h.resolveApp(c)
	if err != nil {
		return nil, nil, err
	}
	if !app.IsInternal() {
		return nil, nil, ForbiddenError("Tokens are only available for internal integrations.")
	}
	return user, app, nil
}

func requireUser(c *fiber.Ctx) (*UserContext, error) {
	user := GetUser(c)
	if user == nil {
		return nil, UnauthorizedError("Authentication credentials were not provided.")
	}
	return user, nil
}

// present returns the app as the requester may see it. The client secret is
// hidden when the app holds scopes the requester does not.
func present(app *sentryapp.SentryApp, user *UserContext) *sentryapp.SentryApp {
	out := *app
	if !user.HasScopes(app.Scopes) {
		out.ClientSecret = sentryapp.MaskedSecret
	}
	return &out
}

func sameScopes(a, b []string) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(buf)
}
