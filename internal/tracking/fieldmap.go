package tracking

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FieldMap is an insertion-ordered label -> value mapping. Setting an existing
// label replaces its value but keeps its original position.
type FieldMap struct {
	keys   []string
	values map[string]string
}

// NewFieldMap creates an empty field map
func NewFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string]string)}
}

// Set stores value under label
func (m *FieldMap) Set(label, value string) {
	if _, exists := m.values[label]; !exists {
		m.keys = append(m.keys, label)
	}
	m.values[label] = value
}

// Get returns the value stored under label
func (m *FieldMap) Get(label string) (string, bool) {
	v, ok := m.values[label]
	return v, ok
}

// Has reports whether label is present exactly as given
func (m *FieldMap) Has(label string) bool {
	_, ok := m.values[label]
	return ok
}

// HasFold reports whether a label equal to label under case folding is present
func (m *FieldMap) HasFold(label string) bool {
	for _, k := range m.keys {
		if strings.EqualFold(k, label) {
			return true
		}
	}
	return false
}

// Len returns the number of fields
func (m *FieldMap) Len() int {
	return len(m.keys)
}

// Keys returns the labels in discovery order
func (m *FieldMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Each calls fn for every field in discovery order
func (m *FieldMap) Each(fn func(label, value string)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Clone returns an independent copy
func (m *FieldMap) Clone() *FieldMap {
	c := NewFieldMap()
	m.Each(c.Set)
	return c
}

// MarshalJSON encodes the map as a JSON object preserving field order
func (m *FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
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

// UnmarshalJSON decodes a JSON object, keeping the order fields appear in
func (m *FieldMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	m.keys = nil
	m.values = make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		m.Set(key, value)
	}
	_, err := dec.Token()
	return err
}
