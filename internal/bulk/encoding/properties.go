package encoding

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PropertyValue is a raw string paired with its resolved type
type PropertyValue struct {
	raw string
	typ PropertyType
}

// NewValue resolves the type of raw
func NewValue(raw string) PropertyValue {
	return PropertyValue{raw: raw, typ: ResolveType(raw)}
}

// TypedValue builds a value with an explicit type, skipping resolution.
// Encoding fails with ErrTypeMismatch if raw does not fit t.
func TypedValue(t PropertyType, raw string) PropertyValue {
	return PropertyValue{raw: raw, typ: t}
}

// Raw returns the original text
func (v PropertyValue) Raw() string { return v.raw }

// Type returns the resolved type
func (v PropertyValue) Type() PropertyType { return v.typ }

// PropertyMap is an ordered set of named property values. Insertion order is
// kept through encoding.
type PropertyMap struct {
	keys   []string
	values map[string]PropertyValue
}

// NewPropertyMap creates an empty map
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{values: make(map[string]PropertyValue)}
}

// PropertiesOf builds a map from alternating name, raw value pairs.
// A trailing name without a value is ignored.
func PropertiesOf(pairs ...string) *PropertyMap {
	m := NewPropertyMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set stores raw under name, resolving its type. An existing name keeps its
// position.
func (m *PropertyMap) Set(name, raw string) {
	m.SetValue(name, NewValue(raw))
}

// SetValue stores an already typed value under name
func (m *PropertyMap) SetValue(name string, v PropertyValue) {
	if m.values == nil {
		m.values = make(map[string]PropertyValue)
	}
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = v
}

// Get returns the value stored under name
func (m *PropertyMap) Get(name string) (PropertyValue, bool) {
	if m == nil {
		return PropertyValue{}, false
	}
	v, ok := m.values[name]
	return v, ok
}

// Len returns the number of properties
func (m *PropertyMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the property names in insertion order
func (m *PropertyMap) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Values returns the property values in insertion order
func (m *PropertyMap) Values() []PropertyValue {
	if m == nil {
		return nil
	}
	values := make([]PropertyValue, len(m.keys))
	for i, k := range m.keys {
		values[i] = m.values[k]
	}
	return values
}

// Bind pairs a schema's names with decoded values, rebuilding a map
func Bind(names []string, values []PropertyValue) (*PropertyMap, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("binding %d names to %d values: %w", len(names), len(values), ErrMalformedRecord)
	}
	m := NewPropertyMap()
	for i, name := range names {
		if _, dup := m.values[name]; dup {
			return nil, fmt.Errorf("duplicate property name %q", name)
		}
		m.SetValue(name, values[i])
	}
	return m, nil
}

// UnmarshalJSON decodes a JSON object keeping member order. Strings are taken
// verbatim. Numbers keep their literal text, booleans and null become their
// keywords. Nested objects and arrays are rejected.
func (m *PropertyMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading properties: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties must be a JSON object")
	}

	*m = PropertyMap{values: make(map[string]PropertyValue)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading property name: %w", err)
		}
		name := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("reading property %q: %w", name, err)
		}
		var raw string
		switch v := tok.(type) {
		case string:
			raw = v
		case json.Number:
			raw = v.String()
		case bool:
			if v {
				raw = "true"
			} else {
				raw = "false"
			}
		case nil:
			raw = "null"
		default:
			return fmt.Errorf("property %q: nested values are not supported", name)
		}
		m.Set(name, raw)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading properties: %w", err)
	}
	return nil
}

// MarshalJSON writes the map as a JSON object in insertion order with typed
// values.
func (m *PropertyMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.values[k].Native())
		if err != nil {
			return nil, fmt.Errorf("marshaling property %q: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
