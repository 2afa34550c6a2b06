package crdt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func reg(value string, ts time.Time, node string) Register {
	return Register{Timestamp: ts, NodeID: node, Value: json.RawMessage(value)}
}

func TestRegister_IsNewerThan(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Register
		newer bool
	}{
		{name: "later timestamp wins", a: reg(`1`, t0.Add(time.Second), "a"), b: reg(`2`, t0, "z"), newer: true},
		{name: "earlier timestamp loses", a: reg(`1`, t0, "z"), b: reg(`2`, t0.Add(time.Second), "a"), newer: false},
		{name: "tie broken by node id", a: reg(`1`, t0, "server"), b: reg(`2`, t0, "device-1"), newer: true},
		{name: "identical is not newer", a: reg(`1`, t0, "n"), b: reg(`1`, t0, "n"), newer: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.newer, tt.a.IsNewerThan(tt.b))
		})
	}
}

func TestLWWMap_Set(t *testing.T) {
	m := NewLWWMap()

	assert.True(t, m.Set("status", reg(`"open"`, t0, "a")))
	assert.False(t, m.Set("status", reg(`"closed"`, t0.Add(-time.Minute), "a")), "older write must not win")
	assert.True(t, m.Set("status", reg(`"closed"`, t0.Add(time.Minute), "a")))

	got, ok := m.Get("status")
	require.True(t, ok)
	assert.JSONEq(t, `"closed"`, string(got.Value))

	_, ok = m.Get("missing")
	assert.False(t, ok)

	// Get hands out a copy.
	got.Value[0] = 'x'
	again, _ := m.Get("status")
	assert.JSONEq(t, `"closed"`, string(again.Value))
}

func TestLWWMap_MergeIsCommutative(t *testing.T) {
	build := func() (*LWWMap, *LWWMap) {
		a := NewLWWMap()
		a.Set("x", reg(`1`, t0, "a"))
		a.Set("y", reg(`"a"`, t0.Add(time.Second), "a"))
		b := NewLWWMap()
		b.Set("x", reg(`2`, t0.Add(time.Second), "b"))
		b.Set("z", reg(`true`, t0, "b"))
		return a, b
	}

	a1, b1 := build()
	a1.Merge(b1)
	ab, err := a1.Object()
	require.NoError(t, err)

	a2, b2 := build()
	b2.Merge(a2)
	ba, err := b2.Object()
	require.NoError(t, err)

	assert.JSONEq(t, `{"x":2,"y":"a","z":true}`, string(ab))
	assert.JSONEq(t, string(ab), string(ba))

	// idempotent
	a1.Merge(b1)
	again, err := a1.Object()
	require.NoError(t, err)
	assert.JSONEq(t, string(ab), string(again))
	assert.Equal(t, []string{"x", "y", "z"}, a1.Fields())
}

func TestMergeObjects(t *testing.T) {
	server := Side{Timestamp: t0, NodeID: "server", Doc: json.RawMessage(`{"title":"pump","status":"open","crew":3}`)}
	client := Side{Timestamp: t0.Add(time.Hour), NodeID: "tablet-1", Doc: json.RawMessage(`{"status":"done","notes":"ok"}`)}

	merged, err := MergeObjects(server, client)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"pump","status":"done","crew":3,"notes":"ok"}`, string(merged))

	// An older client loses overlapping fields but still contributes new ones.
	client.Timestamp = t0.Add(-time.Hour)
	merged, err = MergeObjects(server, client)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"pump","status":"open","crew":3,"notes":"ok"}`, string(merged))
}

func TestMergeObjects_NotObject(t *testing.T) {
	tests := []string{`[1,2]`, `"text"`, `42`, `null`, ``}

	for _, doc := range tests {
		t.Run(doc, func(t *testing.T) {
			_, err := MergeObjects(
				Side{Timestamp: t0, NodeID: "server", Doc: json.RawMessage(`{"a":1}`)},
				Side{Timestamp: t0, NodeID: "d", Doc: json.RawMessage(doc)},
			)
			assert.ErrorIs(t, err, ErrNotObject)
		})
	}
}
