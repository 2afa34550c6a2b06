package crdt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotObject is returned when a document is not a JSON object.
var ErrNotObject = errors.New("document is not a JSON object")

// Register is one field value stamped with the write that produced it.
type Register struct {
	Timestamp time.Time
	NodeID    string
	Value     json.RawMessage
}

// IsNewerThan decides which of two writes wins: the later timestamp, and on
// equal timestamps the lexically greater node id so every replica agrees.
func (r Register) IsNewerThan(other Register) bool {
	if r.Timestamp.After(other.Timestamp) {
		return true
	}
	if r.Timestamp.Before(other.Timestamp) {
		return false
	}
	return r.NodeID > other.NodeID
}

func (r Register) clone() Register {
	v := make(json.RawMessage, len(r.Value))
	copy(v, r.Value)
	r.Value = v
	return r
}

// LWWMap is a last-write-wins map of top-level document fields.
// Merge is commutative, associative and idempotent. A map is not safe for
// concurrent use.
type LWWMap struct {
	fields map[string]Register
}

// NewLWWMap creates an empty map.
func NewLWWMap() *LWWMap {
	return &LWWMap{fields: make(map[string]Register)}
}

// FromObject loads every top-level field of a JSON object as written by
// nodeID at ts.
func FromObject(doc json.RawMessage, ts time.Time, nodeID string) (*LWWMap, error) {
	obj, err := decodeObject(doc)
	if err != nil {
		return nil, err
	}

	m := NewLWWMap()
	for field, value := range obj {
		m.Set(field, Register{Timestamp: ts, NodeID: nodeID, Value: value})
	}
	return m, nil
}

// Set stores reg under field if it is newer than what is there.
// Returns true if the map changed.
func (m *LWWMap) Set(field string, reg Register) bool {
	existing, ok := m.fields[field]
	if ok && !reg.IsNewerThan(existing) {
		return false
	}
	m.fields[field] = reg.clone()
	return true
}

// Get returns the winning register for field.
func (m *LWWMap) Get(field string) (Register, bool) {
	reg, ok := m.fields[field]
	if !ok {
		return Register{}, false
	}
	return reg.clone(), true
}

// Merge folds other into m field by field.
func (m *LWWMap) Merge(other *LWWMap) {
	if m == other {
		return
	}
	for field, reg := range other.fields {
		m.Set(field, reg)
	}
}

// Fields returns field names in sorted order.
func (m *LWWMap) Fields() []string {
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Object renders the winning values as a JSON object with sorted keys.
func (m *LWWMap) Object() (json.RawMessage, error) {
	obj := make(map[string]json.RawMessage, len(m.fields))
	for field, reg := range m.fields {
		obj[field] = reg.Value
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged object: %w", err)
	}
	return data, nil
}

// Side is one participant of a two-way document merge.
type Side struct {
	Timestamp time.Time
	NodeID    string
	Doc       json.RawMessage
}

// MergeObjects unions the fields of two JSON objects. A field present on
// both sides takes the value of the newer side.
func MergeObjects(a, b Side) (json.RawMessage, error) {
	left, err := FromObject(a.Doc, a.Timestamp, a.NodeID)
	if err != nil {
		return nil, fmt.Errorf("left side: %w", err)
	}
	right, err := FromObject(b.Doc, b.Timestamp, b.NodeID)
	if err != nil {
		return nil, fmt.Errorf("right side: %w", err)
	}

	left.Merge(right)
	return left.Object()
}

func decodeObject(doc json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	return obj, nil
}
