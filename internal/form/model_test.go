package form

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type rejectErr struct {
	status int
	body   map[string]any
}

func (e *rejectErr) Error() string        { return "rejected" }
func (e *rejectErr) StatusCode() int      { return e.status }
func (e *rejectErr) Body() map[string]any { return e.body }

type fakeSubmitter struct {
	method   string
	endpoint string
	data     Fields
	resp     map[string]any
	err      error
}

func (s *fakeSubmitter) Submit(_ context.Context, method, endpoint string, data Fields) (map[string]any, error) {
	s.method, s.endpoint, s.data = method, endpoint, data
	return s.resp, s.err
}

func TestModelDataAppliesFilter(t *testing.T) {
	m := NewModel(Options{
		Filter: func(f Fields) Fields {
			return f.Filter(func(k string) bool { return k != "secret" })
		},
	})
	m.SetInitialData(map[string]any{"name": "x", "secret": "y"})

	data := m.Data()
	if _, ok := data.Get("secret"); ok {
		t.Fatal("expected secret to be filtered")
	}
	if _, ok := m.Fields().Get("secret"); !ok {
		t.Fatal("filter must not touch the staged fields")
	}
}

func TestModelReactions(t *testing.T) {
	m := NewModel(Options{
		Reactions: []Reaction{{
			When: `name == "webhookUrl" && (value == nil || value == "") && isInternal`,
			Set:  "isAlertable",
			To:   false,
		}},
	})
	m.SetInitialData(map[string]any{"webhookUrl": "https://example.com", "isAlertable": true})

	m.SetEnv("isInternal", false)
	m.SetValue("webhookUrl", "")
	if m.GetValue("isAlertable") != true {
		t.Fatal("public app must keep isAlertable")
	}

	m.SetEnv("isInternal", true)
	m.SetValue("webhookUrl", "https://other.example.com")
	if m.GetValue("isAlertable") != true {
		t.Fatal("non-empty webhook must keep isAlertable")
	}

	m.SetValue("webhookUrl", "")
	if m.GetValue("isAlertable") != false {
		t.Fatal("expected isAlertable=false after clearing webhook on internal app")
	}
}

func TestModelBrokenReactionIsSkipped(t *testing.T) {
	m := NewModel(Options{Reactions: []Reaction{{When: "name ==", Set: "x", To: 1}}})
	m.SetValue("a", 1)
	if m.GetValue("x") != nil {
		t.Fatal("broken reaction must not set a value")
	}
}

func TestModelListeners(t *testing.T) {
	m := NewModel(Options{})
	var got []string
	m.OnFieldChange(func(key string, _ any) { got = append(got, key) })
	m.SetValue("a", 1)
	m.SetValue("b", 2)
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Fatalf("listener calls (-want +got):\n%s", diff)
	}
}

func TestModelSubmitSuccess(t *testing.T) {
	m := NewModel(Options{})
	m.SetInitialData(map[string]any{"name": "x"})
	m.SetValue("name", "y")
	if !m.Changed("name") {
		t.Fatal("expected name to be changed")
	}

	s := &fakeSubmitter{resp: map[string]any{"slug": "y"}}
	resp, err := m.Submit(context.Background(), s, "POST", "/sentry-apps/")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp["slug"] != "y" {
		t.Fatalf("unexpected response %v", resp)
	}
	if s.method != "POST" || s.endpoint != "/sentry-apps/" {
		t.Fatalf("unexpected request %s %s", s.method, s.endpoint)
	}
	if m.Changed("name") {
		t.Fatal("a successful submit resets the initial values")
	}
	if m.FormErrors() != nil {
		t.Fatal("expected no form errors")
	}
}

func TestModelSubmitRejected(t *testing.T) {
	m := NewModel(Options{
		MapErrors: func(body map[string]any) map[string]any {
			out := map[string]any{}
			for k, v := range body {
				out["mapped-"+k] = v
			}
			return out
		},
	})
	m.SetInitialData(map[string]any{"name": "x"})

	rej := &rejectErr{status: 400, body: map[string]any{"name": []any{"taken"}}}
	s := &fakeSubmitter{err: rej}
	_, err := m.Submit(context.Background(), s, "PUT", "/sentry-apps/x/")
	if !errors.Is(err, rej) {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if diff := cmp.Diff([]string{"taken"}, m.FieldErrors("mapped-name")); diff != "" {
		t.Fatalf("field errors (-want +got):\n%s", diff)
	}
	if m.FirstErrorField() != "mapped-name" {
		t.Fatalf("expected mapped-name, got %q", m.FirstErrorField())
	}
}

func TestModelSubmitTransportError(t *testing.T) {
	m := NewModel(Options{})
	s := &fakeSubmitter{err: errors.New("connection refused")}
	if _, err := m.Submit(context.Background(), s, "POST", "/"); err == nil {
		t.Fatal("expected error")
	}
	if m.FormErrors() != nil {
		t.Fatal("transport errors carry no body to map")
	}
}

func TestFirstErrorFieldPrefersFormOrder(t *testing.T) {
	m := NewModel(Options{})
	m.SetInitialData(map[string]any{"b": 1, "a": 2})
	m.SetValue("c", 3)

	rej := &rejectErr{status: 400, body: map[string]any{"zzz": "x", "c": "bad", "b": "bad"}}
	_, _ = m.Submit(context.Background(), &fakeSubmitter{err: rej}, "POST", "/")
	if got := m.FirstErrorField(); got != "b" {
		t.Fatalf("expected b, got %s", got)
	}
}

func TestMessages(t *testing.T) {
	cases := []struct {
		in   any
		want []string
	}{
		{nil, nil},
		{"one", []string{"one"}},
		{[]string{"a", "b"}, []string{"a", "b"}},
		{[]any{"a", 1, "b"}, []string{"a", "b"}},
		{42, nil},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, Messages(tc.in)); diff != "" {
			t.Fatalf("Messages(%v) (-want +got):\n%s", tc.in, diff)
		}
	}
}
