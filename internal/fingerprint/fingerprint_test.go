package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload json.RawMessage
		errMsg  string
		wantErr bool
	}{
		{name: "object", payload: json.RawMessage(`{"a":1}`)},
		{name: "array", payload: json.RawMessage(`[1,2,3]`)},
		{name: "empty", payload: nil, wantErr: true, errMsg: "cannot be empty"},
		{name: "broken", payload: json.RawMessage(`{"a":`), wantErr: true, errMsg: "failed to compact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := Payload(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Len(t, hash, 64)
		})
	}
}

func TestPayload_IgnoresWhitespace(t *testing.T) {
	a, err := Payload(json.RawMessage(`{"status":"done","crew":3}`))
	require.NoError(t, err)
	b, err := Payload(json.RawMessage("{\n  \"status\": \"done\",\n  \"crew\": 3\n}"))
	require.NoError(t, err)
	c, err := Payload(json.RawMessage(`{"status":"open","crew":3}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, Equal(json.RawMessage(`{ "status":"done", "crew":3 }`), a))
	assert.False(t, Equal(nil, a))
}
