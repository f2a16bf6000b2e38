package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"devsettings/internal/logger"
	"devsettings/internal/sentryapp"
	"devsettings/internal/storage"
	"devsettings/internal/store"
)

// SetAvatar handles PUT /api/0/sentry-apps/:slug/avatar/ with a JSON
// avatar. It is used to reset a style to the default or to point it at an
// already uploaded image.
func (h *Handler) SetAvatar(c *fiber.Ctx) error {
	user, app, err := h.resolveApp(c)
	if err != nil {
		return err
	}
	var av sentryapp.Avatar
	if err := c.BodyParser(&av); err != nil {
		return InvalidPayloadError()
	}
	switch av.AvatarType {
	case "default":
		av.AvatarUUID = nil
	case "upload":
		if av.AvatarUUID == nil || *av.AvatarUUID == "" {
			return ValidationError(map[string][]string{"avatarUuid": {"This field is required."}})
		}
		// only images already uploaded to this app may be reused
		if !app.OwnsUpload(*av.AvatarUUID) {
			return ValidationError(map[string][]string{"avatarUuid": {"Unknown avatar for this integration."}})
		}
	default:
		return ValidationError(map[string][]string{"avatarType": {"Invalid avatar type."}})
	}

	if err := h.replaceAvatar(c.UserContext(), app, av); err != nil {
		return err
	}
	return c.JSON(present(app, user))
}

// UploadAvatar handles POST /api/0/sentry-apps/:slug/avatar/ with a
// multipart "avatar" PNG and a "color" flag.
func (h *Handler) UploadAvatar(c *fiber.Ctx) error {
	if h.avatars == nil {
		return NewAppError("NOT_IMPLEMENTED", fiber.StatusNotImplemented, "Avatar uploads are disabled.")
	}
	user, app, err := h.resolveApp(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("avatar")
	if err != nil {
		return ValidationError(map[string][]string{"avatar": {"This field is required."}})
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if http.DetectContentType(head) != "image/png" {
		return ValidationError(map[string][]string{"avatar": {"Avatar must be a PNG image."}})
	}

	ctx := c.UserContext()
	id, err := h.avatars.Save(ctx, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return &AppError{Code: "FILE_TOO_LARGE", Status: fiber.StatusRequestEntityTooLarge,
				Fields: map[string][]string{"avatar": {"Avatar is too large."}}}
		}
		return fmt.Errorf("save avatar: %w", err)
	}

	av := sentryapp.Avatar{AvatarType: "upload", AvatarUUID: &id, Color: c.FormValue("color") == "true"}
	if err := h.replaceAvatar(ctx, app, av); err != nil {
		_ = h.avatars.Delete(ctx, id)
		return err
	}
	return c.JSON(present(app, user))
}

// ServeAvatar handles GET /api/0/sentry-app-avatar/:uuid/
func (h *Handler) ServeAvatar(c *fiber.Ctx) error {
	if h.avatars == nil {
		return NotFoundError("Avatar")
	}
	rc, err := h.avatars.Open(c.UserContext(), c.Params("uuid"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NotFoundError("Avatar")
		}
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	// fasthttp closes the stream once it is sent
	return c.SendStream(rc)
}

// replaceAvatar stores av on app and removes the uploaded image it replaced,
// unless the app still points at it from its other avatar.
func (h *Handler) replaceAvatar(ctx context.Context, app *sentryapp.SentryApp, av sentryapp.Avatar) error {
	prev := app.Avatar(av.Color)
	app.SetAvatar(av)
	if err := store.UpdateApp(ctx, h.store, app); err != nil {
		return fmt.Errorf("update avatar %s: %w", app.Slug, err)
	}
	if prev.AvatarType == "upload" && prev.AvatarUUID != nil && !app.OwnsUpload(*prev.AvatarUUID) {
		h.removeImages(ctx, *prev.AvatarUUID)
	}
	return nil
}

// removeImages deletes stored avatar images. Failures are logged only.
func (h *Handler) removeImages(ctx context.Context, ids ...string) {
	if h.avatars == nil {
		return
	}
	for _, id := range ids {
		if err := h.avatars.Delete(ctx, id); err != nil {
			logger.From(ctx).Warn("stale avatar not removed", zap.String("avatar", id), zap.Error(err))
		}
	}
}
