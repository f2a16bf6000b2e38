package form

import (
	"context"
	"errors"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"devsettings/internal/logger"
)

// DataFilter shapes staged fields into the outbound payload.
type DataFilter func(Fields) Fields

// ErrorMapper turns a rejected submission's response body into field errors.
type ErrorMapper func(map[string]any) map[string]any

// Submitter sends a payload to an API endpoint and returns the decoded body.
type Submitter interface {
	Submit(ctx context.Context, method, endpoint string, data Fields) (map[string]any, error)
}

// ResponseError is an error carrying the decoded response body of a
// rejected request.
type ResponseError interface {
	error
	StatusCode() int
	Body() map[string]any
}

// Reaction sets a field when a change matches When. When is an expr-lang
// boolean expression over name, value, fields and any Options.Env entries.
type Reaction struct {
	When string
	Set  string
	To   any
}

// Options configures a Model. Nil Filter and MapErrors mean identity.
type Options struct {
	Filter    DataFilter
	MapErrors ErrorMapper
	Reactions []Reaction
	Env       map[string]any
}

// Model holds the state of one form. It is not safe for concurrent use.
type Model struct {
	opts       Options
	fields     Fields
	initial    Fields
	formErrors map[string]any
	listeners  []func(key string, value any)
	programs   map[string]*vm.Program
}

func NewModel(opts Options) *Model {
	if opts.Env == nil {
		opts.Env = map[string]any{}
	}
	return &Model{
		opts:     opts,
		programs: make(map[string]*vm.Program),
	}
}

// SetInitialData replaces all values with data and clears errors.
func (m *Model) SetInitialData(data map[string]any) {
	m.fields = NewFields(data)
	m.initial = m.fields.Clone()
	m.formErrors = nil
}

// SetEnv exposes an extra variable to reaction expressions.
func (m *Model) SetEnv(key string, value any) {
	m.opts.Env[key] = value
}

// OnFieldChange registers fn to run after every SetValue.
func (m *Model) OnFieldChange(fn func(key string, value any)) {
	m.listeners = append(m.listeners, fn)
}

// SetValue updates a field, notifies listeners and applies reactions.
func (m *Model) SetValue(key string, value any) {
	m.fields.Set(key, value)
	for _, fn := range m.listeners {
		fn(key, value)
	}
	m.react(key, value)
}

func (m *Model) GetValue(key string) any {
	v, _ := m.fields.Get(key)
	return v
}

// Fields returns a copy of every staged value, synthetic ones included.
func (m *Model) Fields() Fields {
	return m.fields.Clone()
}

// Changed reports whether key differs from its initial value.
func (m *Model) Changed(key string) bool {
	cur, ok := m.fields.Get(key)
	old, had := m.initial.Get(key)
	if ok != had {
		return true
	}
	return !equalValues(cur, old)
}

// Data returns the payload that would be submitted.
func (m *Model) Data() Fields {
	data := m.fields.Clone()
	if m.opts.Filter != nil {
		data = m.opts.Filter(data)
	}
	return data
}

// FormErrors returns the errors from the last rejected submission.
func (m *Model) FormErrors() map[string]any {
	return m.formErrors
}

// FieldErrors returns the messages filed under key.
func (m *Model) FieldErrors(key string) []string {
	return Messages(m.formErrors[key])
}

// FirstErrorField returns the first field, in form order, with an error.
// Errors on keys the form does not hold are considered after, sorted.
func (m *Model) FirstErrorField() string {
	if len(m.formErrors) == 0 {
		return ""
	}
	for _, k := range m.fields.keys {
		if _, ok := m.formErrors[k]; ok {
			return k
		}
	}
	rest := make([]string, 0, len(m.formErrors))
	for k := range m.formErrors {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return rest[0]
}

// Submit sends Data() through s. When the request is rejected with a
// response body, the mapped body becomes the form errors.
func (m *Model) Submit(ctx context.Context, s Submitter, method, endpoint string) (map[string]any, error) {
	resp, err := s.Submit(ctx, method, endpoint, m.Data())
	if err != nil {
		var rerr ResponseError
		if errors.As(err, &rerr) {
			body := rerr.Body()
			if m.opts.MapErrors != nil {
				body = m.opts.MapErrors(body)
			}
			m.formErrors = body
		}
		return nil, err
	}
	m.formErrors = nil
	m.initial = m.fields.Clone()
	return resp, nil
}

func (m *Model) react(key string, value any) {
	if len(m.opts.Reactions) == 0 {
		return
	}
	env := make(map[string]any, len(m.opts.Env)+3)
	for k, v := range m.opts.Env {
		env[k] = v
	}
	env["name"] = key
	env["value"] = value
	env["fields"] = m.fields.Map()

	for _, r := range m.opts.Reactions {
		ok, err := m.eval(r.When, env)
		if err != nil {
			logger.L().Warn("form reaction failed", zap.String("when", r.When), zap.Error(err))
			continue
		}
		if ok {
			m.fields.Set(r.Set, r.To)
		}
	}
}

func (m *Model) eval(expression string, env map[string]any) (bool, error) {
	prog, ok := m.programs[expression]
	if !ok {
		var err error
		prog, err = expr.Compile(expression, expr.AsBool())
		if err != nil {
			return false, err
		}
		m.programs[expression] = prog
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Messages normalizes an error value (string, []string or []any) to a list.
func Messages(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
