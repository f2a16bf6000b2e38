package form

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Fields is an insertion-ordered set of form values keyed by field name.
// The zero value is ready to use.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields builds Fields from m in sorted key order.
func NewFields(m map[string]any) Fields {
	var f Fields
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.Set(k, m[k])
	}
	return f
}

// Set stores value under key. Existing keys keep their position.
func (f *Fields) Set(key string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value for key.
func (f Fields) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Delete removes key, preserving the order of the rest.
func (f *Fields) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in insertion order.
func (f Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func (f Fields) Len() int { return len(f.keys) }

// Map returns a plain copy of the values.
func (f Fields) Map() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Filter returns a copy holding only the keys keep accepts, in order.
func (f Fields) Filter(keep func(key string) bool) Fields {
	var out Fields
	for _, k := range f.keys {
		if keep(k) {
			out.Set(k, f.values[k])
		}
	}
	return out
}

// MarshalJSON encodes the fields as an object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a copy that shares no storage with f. Values themselves are
// not deep-copied.
func (f Fields) Clone() Fields {
	return f.Filter(func(string) bool { return true })
}
