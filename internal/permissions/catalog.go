package permissions

import (
	"fmt"
	"sort"
	"strings"
)

// Resource is a named group of scopes shown as one permission control.
type Resource string

const (
	Project      Resource = "Project"
	Team         Resource = "Team"
	Release      Resource = "Release"
	Event        Resource = "Event"
	Organization Resource = "Organization"
	Member       Resource = "Member"
)

// Choice names, lowest access first.
const (
	NoAccess = "no-access"
	Read     = "read"
	Write    = "write"
	Admin    = "admin"
)

// FieldSuffix marks form fields that only drive the permission selectors.
const FieldSuffix = "--permission"

// Choice is one selectable access level for a resource.
type Choice struct {
	Name   string   `json:"name"`
	Label  string   `json:"label"`
	Scopes []string `json:"scopes"`
}

// Entry lists the access levels offered for a single resource.
type Entry struct {
	Resource Resource `json:"resource"`
	Label    string   `json:"label,omitempty"`
	Help     string   `json:"help"`
	Choices  []Choice `json:"choices"`
}

// Catalog is an ordered list of permission entries. Lookups scan it in order.
type Catalog []Entry

// Default is the catalog offered to integration registrations.
var Default = Catalog{
	{
		Resource: Project,
		Help:     "Projects, Tags, Debug Files, and Feedback",
		Choices: []Choice{
			{Name: NoAccess, Label: "No Access", Scopes: []string{}},
			{Name: Read, Label: "Read", Scopes: []string{"project:read"}},
			{Name: Write, Label: "Read & Write", Scopes: []string{"project:read", "project:write"}},
			{Name: Admin, Label: "Admin", Scopes: []string{"project:read", "project:write", "project:admin"}},
		},
	},
	{
		Resource: Team,
		Help:     "Teams of members",
		Choices: []Choice{
			{Name: NoAccess, Label: "No Access", Scopes: []string{}},
			{Name: Read, Label: "Read", Scopes: []string{"team:read"}},
			{Name: Write, Label: "Read & Write", Scopes: []string{"team:read", "team:write"}},
			{Name: Admin, Label: "Admin", Scopes: []string{"team:read", "team:write", "team:admin"}},
		},
	},
	{
		Resource: Release,
		Help:     "Releases, Commits, and related Deploys",
		Choices: []Choice{
			{Name: NoAccess, Label: "No Access", Scopes: []string{}},
			{Name: Admin, Label: "Admin", Scopes: []string{"project:releases"}},
		},
	},
	{
		Resource: Event,
		Label:    "Issue & Event",
		Help:     "Issues, Events, and workflow statuses",
		Choices: []Choice{
			{Name: NoAccess, Label: "No Access", Scopes: []string{}},
			{Name: Read, Label: "Read", Scopes: []string{"event:read"}},
			{Name: Write, Label: "Read & Write", Scopes: []string{"event:read", "event:write"}},
			{Name: Admin, Label: "Admin", Scopes: []string{"event:read", "event:write", "event:admin"}},
		},
	},
	{
		Resource: Organization,
		Help:     "Manage Organization, resolve IDs, retrieve Repositories and Commits",
		Choices: []Choice{
			{Name: NoAccess, Label: "No Access", Scopes: []string{}},
			{Name: Read, Label: "Read", Scopes: []string{"org:read"}},
			{Name: Write, Label: "Read & Write", Scopes: []string{"org:read", "org:write"}},
			{Name: Admin, Label: "Admin", Scopes: []string{"org:read", "org:write", "org:admin"}},
		},
	},
	{
		Resource: Member,
		Help:     "Manage Members within Teams",
		Choices: []Choice{
			{Name: NoAccess, Label: "No Access", Scopes: []string{}},
			{Name: Read, Label: "Read", Scopes: []string{"member:read"}},
			{Name: Write, Label: "Read & Write", Scopes: []string{"member:read", "member:write"}},
			{Name: Admin, Label: "Admin", Scopes: []string{"member:read", "member:write", "member:admin"}},
		},
	},
}

// AllScopes flattens every choice's scopes, in choice order, duplicates kept.
func (e Entry) AllScopes() []string {
	var all []string
	for _, ch := range e.Choices {
		all = append(all, ch.Scopes...)
	}
	return all
}

// ResolveResource finds the resource owning scope. The catalog is expected to
// be exhaustive, so a miss usually means stale data rather than bad input.
func (c Catalog) ResolveResource(scope string) (Resource, bool) {
	for _, entry := range c {
		for _, s := range entry.AllScopes() {
			if s == scope {
				return entry.Resource, true
			}
		}
	}
	return "", false
}

// AllScopes returns every scope in the catalog, sorted.
func (c Catalog) AllScopes() []string {
	full := make(map[Resource]string, len(c))
	for _, entry := range c {
		if n := len(entry.Choices); n > 0 {
			full[entry.Resource] = entry.Choices[n-1].Name
		}
	}
	return c.RollUp(full)
}

// Entry returns the catalog entry for resource.
func (c Catalog) Entry(resource Resource) (Entry, bool) {
	for _, entry := range c {
		if entry.Resource == resource {
			return entry, true
		}
	}
	return Entry{}, false
}

// Scopes returns the scopes granted by a resource's choice, or nil when
// either is unknown.
func (c Catalog) Scopes(resource Resource, choice string) []string {
	entry, ok := c.Entry(resource)
	if !ok {
		return nil
	}
	for _, ch := range entry.Choices {
		if ch.Name == choice {
			return ch.Scopes
		}
	}
	return nil
}

// ChoiceFor returns the highest choice of resource whose scopes are all in held.
func (c Catalog) ChoiceFor(resource Resource, held []string) string {
	entry, ok := c.Entry(resource)
	if !ok {
		return NoAccess
	}
	set := make(map[string]bool, len(held))
	for _, s := range held {
		set[s] = true
	}

	best := NoAccess
	for _, ch := range entry.Choices {
		if len(ch.Scopes) == 0 {
			continue
		}
		all := true
		for _, s := range ch.Scopes {
			if !set[s] {
				all = false
				break
			}
		}
		if all {
			best = ch.Name
		}
	}
	return best
}

// Selections maps every resource to the choice implied by scopes.
func (c Catalog) Selections(scopes []string) map[Resource]string {
	out := make(map[Resource]string, len(c))
	for _, entry := range c {
		out[entry.Resource] = c.ChoiceFor(entry.Resource, scopes)
	}
	return out
}

// RollUp turns per-resource selections back into a sorted, deduplicated
// scope list. Unknown resources or choices contribute nothing.
func (c Catalog) RollUp(selections map[Resource]string) []string {
	seen := map[string]bool{}
	scopes := []string{}
	for resource, choice := range selections {
		for _, s := range c.Scopes(resource, choice) {
			if !seen[s] {
				seen[s] = true
				scopes = append(scopes, s)
			}
		}
	}
	sort.Strings(scopes)
	return scopes
}

// Validate reports scopes that appear under more than one resource.
func (c Catalog) Validate() error {
	owner := map[string]Resource{}
	for _, entry := range c {
		for _, s := range entry.AllScopes() {
			if prev, ok := owner[s]; ok && prev != entry.Resource {
				return fmt.Errorf("scope %q belongs to both %s and %s", s, prev, entry.Resource)
			}
			owner[s] = entry.Resource
		}
	}
	return nil
}

// FieldKey returns the synthetic form field key for resource.
func FieldKey(resource Resource) string {
	return string(resource) + FieldSuffix
}

// IsSyntheticKey reports whether key names a permission selector field.
func IsSyntheticKey(key string) bool {
	return strings.HasSuffix(key, FieldSuffix)
}

// ResourceFromKey is the inverse of FieldKey.
func ResourceFromKey(key string) (Resource, bool) {
	if !IsSyntheticKey(key) {
		return "", false
	}
	return Resource(strings.TrimSuffix(key, FieldSuffix)), true
}
