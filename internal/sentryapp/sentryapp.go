package sentryapp

import (
	"strings"
	"time"
)

// Status values for an integration registration.
const (
	StatusUnpublished = "unpublished"
	StatusPublished   = "published"
	StatusInternal    = "internal"
)

// Avatar is an uploaded logo. Color avatars are the large logo, simple ones
// the small issue-linking icon.
type Avatar struct {
	AvatarType string  `json:"avatarType"`
	AvatarUUID *string `json:"avatarUuid"`
	Color      bool    `json:"color"`
}

// SentryApp is an integration registration.
type SentryApp struct {
	UUID          string         `json:"uuid"`
	Slug          string         `json:"slug"`
	Name          string         `json:"name"`
	Author        string         `json:"author,omitempty"`
	Overview      string         `json:"overview,omitempty"`
	Status        string         `json:"status"`
	Organization  string         `json:"owner"`
	Scopes        []string       `json:"scopes"`
	Events        []string       `json:"events"`
	WebhookURL    string         `json:"webhookUrl,omitempty"`
	RedirectURL   string         `json:"redirectUrl,omitempty"`
	IsAlertable   bool           `json:"isAlertable"`
	VerifyInstall bool           `json:"verifyInstall"`
	Schema        map[string]any `json:"schema"`
	ClientID      string         `json:"clientId,omitempty"`
	ClientSecret  string         `json:"clientSecret,omitempty"`
	Avatars       []Avatar       `json:"avatars"`
	DateCreated   time.Time      `json:"dateCreated"`
}

// IsInternal reports whether the app is an internal integration.
func (a *SentryApp) IsInternal() bool {
	return a != nil && a.Status == StatusInternal
}

// SetAvatar replaces the avatar of the same color, appending when absent.
func (a *SentryApp) SetAvatar(av Avatar) {
	kept := a.Avatars[:0:0]
	for _, prev := range a.Avatars {
		if prev.Color != av.Color {
			kept = append(kept, prev)
		}
	}
	a.Avatars = append(kept, av)
}

// Avatar returns the avatar for the given style, or a default one.
func (a *SentryApp) Avatar(color bool) Avatar {
	if a != nil {
		for _, av := range a.Avatars {
			if av.Color == color {
				return av
			}
		}
	}
	return Avatar{AvatarType: "default", Color: color}
}

// UploadIDs returns the stored image ids the app's avatars point at.
func (a *SentryApp) UploadIDs() []string {
	var ids []string
	for _, av := range a.Avatars {
		if av.AvatarType == "upload" && av.AvatarUUID != nil && *av.AvatarUUID != "" {
			ids = append(ids, *av.AvatarUUID)
		}
	}
	return ids
}

// OwnsUpload reports whether one of the app's avatars points at image id.
func (a *SentryApp) OwnsUpload(id string) bool {
	for _, own := range a.UploadIDs() {
		if own == id {
			return true
		}
	}
	return false
}

// APIToken is a token minted for an internal integration.
type APIToken struct {
	Token       string    `json:"token"`
	Scopes      []string  `json:"scopes"`
	DateCreated time.Time `json:"dateCreated"`
}

// MaskedSecret replaces a client secret the requester may not see.
const MaskedSecret = "**********"

// IsMasked reports whether a client secret was hidden by the API.
func IsMasked(secret string) bool {
	return strings.HasPrefix(secret, "*")
}

// NormalizeEvents strips the action from resource events: "issue.created"
// becomes "issue".
func NormalizeEvents(events []string) []string {
	if len(events) == 0 {
		return events
	}
	out := make([]string, len(events))
	for i, e := range events {
		out[i], _, _ = strings.Cut(e, ".")
	}
	return out
}

// Slugify derives a URL slug from an integration name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
