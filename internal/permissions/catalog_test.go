package permissions

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveResource(t *testing.T) {
	cat := Catalog{
		{Resource: Project, Choices: []Choice{
			{Name: Read, Scopes: []string{"project:read"}},
			{Name: Write, Scopes: []string{"project:read", "project:write"}},
		}},
		{Resource: Team, Choices: []Choice{
			{Name: Read, Scopes: []string{"team:read"}},
		}},
	}

	res, ok := cat.ResolveResource("team:read")
	if !ok || res != Team {
		t.Fatalf("expected Team, got %q (ok=%v)", res, ok)
	}

	res, ok = cat.ResolveResource("project:write")
	if !ok || res != Project {
		t.Fatalf("expected Project, got %q (ok=%v)", res, ok)
	}

	res, ok = cat.ResolveResource("unknown:scope")
	if ok {
		t.Fatalf("expected miss for unknown scope, got %q", res)
	}
	if res != "" {
		t.Fatalf("expected empty resource on miss, got %q", res)
	}
}

func TestResolveResource_FirstEntryWins(t *testing.T) {
	cat := Catalog{
		{Resource: Project, Choices: []Choice{{Name: Read, Scopes: []string{"shared:read"}}}},
		{Resource: Team, Choices: []Choice{{Name: Read, Scopes: []string{"shared:read"}}}},
	}
	res, ok := cat.ResolveResource("shared:read")
	if !ok || res != Project {
		t.Fatalf("expected first entry Project, got %q", res)
	}
	if err := cat.Validate(); err == nil {
		t.Fatal("expected Validate to report the shared scope")
	}
}

func TestDefaultCatalogIsConsistent(t *testing.T) {
	if err := Default.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	for _, scope := range []string{"project:releases", "event:admin", "org:write", "member:read"} {
		if _, ok := Default.ResolveResource(scope); !ok {
			t.Fatalf("expected %s to resolve", scope)
		}
	}
	if res, _ := Default.ResolveResource("project:releases"); res != Release {
		t.Fatalf("expected project:releases under Release, got %s", res)
	}
}

func TestChoiceFor(t *testing.T) {
	held := []string{"project:read", "project:write", "event:read", "project:releases"}

	cases := map[Resource]string{
		Project:      Write,
		Event:        Read,
		Release:      Admin,
		Team:         NoAccess,
		Organization: NoAccess,
	}
	for res, want := range cases {
		if got := Default.ChoiceFor(res, held); got != want {
			t.Fatalf("%s: expected %s, got %s", res, want, got)
		}
	}

	// project:write without project:read does not satisfy write
	if got := Default.ChoiceFor(Project, []string{"project:write"}); got != NoAccess {
		t.Fatalf("expected no-access, got %s", got)
	}
}

func TestSelectionsRollUpRoundTrip(t *testing.T) {
	scopes := []string{"event:read", "member:read", "member:write", "project:read"}
	sel := Default.Selections(scopes)
	if sel[Member] != Write {
		t.Fatalf("expected member write, got %s", sel[Member])
	}

	got := Default.RollUp(sel)
	if diff := cmp.Diff(scopes, got); diff != "" {
		t.Fatalf("roll up mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogAllScopes(t *testing.T) {
	all := Default.AllScopes()
	if len(all) != 16 {
		t.Fatalf("expected 16 scopes, got %d: %v", len(all), all)
	}
	if all[0] != "event:admin" || all[len(all)-1] != "team:write" {
		t.Fatalf("expected sorted scopes, got %v", all)
	}
}

func TestRollUp_IgnoresUnknown(t *testing.T) {
	got := Default.RollUp(map[Resource]string{"Widget": Admin, Team: "bogus", Project: NoAccess})
	if len(got) != 0 {
		t.Fatalf("expected no scopes, got %v", got)
	}
}

func TestFieldKeys(t *testing.T) {
	key := FieldKey(Organization)
	if key != "Organization--permission" {
		t.Fatalf("unexpected key %s", key)
	}
	if !IsSyntheticKey(key) {
		t.Fatal("expected synthetic key")
	}
	if IsSyntheticKey("permission") || IsSyntheticKey("name") {
		t.Fatal("plain keys must not be synthetic")
	}
	res, ok := ResourceFromKey(key)
	if !ok || res != Organization {
		t.Fatalf("expected Organization, got %s", res)
	}
	if _, ok := ResourceFromKey("scopes"); ok {
		t.Fatal("expected miss for non-synthetic key")
	}
}
