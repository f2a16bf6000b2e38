// Package appform shapes integration registration form data for submission
// and files rejected scopes back onto the permission selectors.
package appform

import (
	"regexp"

	"go.uber.org/zap"

	"devsettings/internal/form"
	"devsettings/internal/logger"
	"devsettings/internal/metrics"
	"devsettings/internal/permissions"
)

// ScopesKey is the response key holding scope rejection messages.
const ScopesKey = "scopes"

// scopeMessage matches messages like
// "Requested permission of project:write exceeds requester's permission."
var scopeMessage = regexp.MustCompile(`Requested permission of (\w+:\w+)`)

// FilterSubmission drops the permission selector fields. Selected scopes are
// submitted once, rolled up under "scopes".
func FilterSubmission(fields form.Fields) form.Fields {
	return fields.Filter(func(key string) bool {
		return !permissions.IsSyntheticKey(key)
	})
}

// ParseScope extracts the scope named by a rejection message.
func ParseScope(message string) (string, bool) {
	m := scopeMessage.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Remapper returns an error mapper resolving scopes against cat.
func Remapper(cat permissions.Catalog) form.ErrorMapper {
	return func(payload map[string]any) map[string]any {
		return remap(cat, payload)
	}
}

// RemapErrors files each scope rejection under "<Resource>--permission"
// using the default catalog. A nil payload is returned as is.
func RemapErrors(payload map[string]any) map[string]any {
	return remap(permissions.Default, payload)
}

func remap(cat permissions.Catalog, payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != ScopesKey {
			out[k] = v
		}
	}

	// Later messages for the same resource replace earlier ones.
	for _, msg := range form.Messages(payload[ScopesKey]) {
		scope, ok := ParseScope(msg)
		if !ok {
			metrics.ScopeErrorsDropped.WithLabelValues("unparsed").Inc()
			continue
		}
		resource, ok := cat.ResolveResource(scope)
		if !ok {
			logger.L().Debug("scope not in permission catalog", zap.String("scope", scope))
			metrics.ScopeErrorsDropped.WithLabelValues("unknown_scope").Inc()
			continue
		}
		out[permissions.FieldKey(resource)] = []string{msg}
		metrics.ScopeErrorsRemapped.WithLabelValues(string(resource)).Inc()
	}
	return out
}

// NewModel returns a form model for an integration registration: permission
// selectors are filtered from the payload, scope errors are remapped, and
// clearing the webhook of an internal integration turns off alerting.
func NewModel(cat permissions.Catalog, internal bool) *form.Model {
	m := form.NewModel(form.Options{
		Filter:    FilterSubmission,
		MapErrors: Remapper(cat),
		Reactions: []form.Reaction{{
			When: `name == "webhookUrl" && (value == nil || value == "") && isInternal`,
			Set:  "isAlertable",
			To:   false,
		}},
	})
	m.SetEnv("isInternal", internal)
	return m
}

// Selections reads the permission selector fields into per-resource choices.
func Selections(fields form.Fields) map[permissions.Resource]string {
	out := map[permissions.Resource]string{}
	for _, k := range fields.Keys() {
		res, ok := permissions.ResourceFromKey(k)
		if !ok {
			continue
		}
		v, _ := fields.Get(k)
		if s, ok := v.(string); ok {
			out[res] = s
		}
	}
	return out
}

// SyncScopes rolls the permission selectors up into the "scopes" field.
func SyncScopes(m *form.Model, cat permissions.Catalog) {
	m.SetValue("scopes", cat.RollUp(Selections(m.Fields())))
}
