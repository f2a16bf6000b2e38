package sentryapp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"

	"devsettings/internal/permissions"
)

// FieldError is a validation problem attached to one input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// eventScopes lists the scope each subscribable resource requires.
var eventScopes = map[string]string{
	"issue":   "event:read",
	"error":   "event:read",
	"comment": "event:read",
}

// ScopeExceedsMessage is the rejection for a scope the requester lacks.
func ScopeExceedsMessage(scope string) string {
	return fmt.Sprintf("Requested permission of %s exceeds requester's permission. "+
		"Please contact an administrator to make the requested change.", scope)
}

// Validate checks an app against the catalog and the scopes held by the
// requesting user. All problems are returned together as a *multierror.Error
// of *FieldError values, or nil.
func Validate(app *SentryApp, requesterScopes []string, cat permissions.Catalog) error {
	var result *multierror.Error
	add := func(field, msg string) {
		result = multierror.Append(result, &FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(app.Name) == "" {
		add("name", "This field is required.")
	}

	held := make(map[string]bool, len(requesterScopes))
	for _, s := range requesterScopes {
		held[s] = true
	}
	for _, scope := range app.Scopes {
		if _, ok := cat.ResolveResource(scope); !ok {
			add("scopes", fmt.Sprintf("%s is not a valid scope.", scope))
			continue
		}
		if !held[scope] {
			add("scopes", ScopeExceedsMessage(scope))
		}
	}

	granted := make(map[string]bool, len(app.Scopes))
	for _, s := range app.Scopes {
		granted[s] = true
	}
	for _, ev := range app.Events {
		need, ok := eventScopes[ev]
		if !ok {
			add("events", fmt.Sprintf("%s is not a valid event.", ev))
			continue
		}
		if !granted[need] {
			add("events", fmt.Sprintf("%s webhooks require the %s permission.", ev, need))
		}
	}

	if app.WebhookURL == "" {
		if app.IsAlertable {
			add("webhookUrl", "webhookUrl required if alertable is enabled.")
		}
		if len(app.Events) > 0 {
			add("webhookUrl", "webhookUrl required to subscribe to events.")
		}
		if app.Status != StatusInternal {
			add("webhookUrl", "This field is required.")
		}
	} else if !validURL(app.WebhookURL) {
		add("webhookUrl", "Enter a valid URL.")
	}
	if app.RedirectURL != "" && !validURL(app.RedirectURL) {
		add("redirectUrl", "Enter a valid URL.")
	}

	return result.ErrorOrNil()
}

// FieldErrors groups the *FieldError values in err by field.
func FieldErrors(err error) map[string][]string {
	if err == nil {
		return nil
	}
	out := map[string][]string{}
	var merr *multierror.Error
	errs := []error{err}
	if errors.As(err, &merr) {
		errs = merr.Errors
	}
	for _, e := range errs {
		var fe *FieldError
		if errors.As(e, &fe) {
			out[fe.Field] = append(out[fe.Field], fe.Message)
		}
	}
	return out
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
