// Package fingerprint hashes mutation payloads so a reused idempotency key
// carrying different content can be told apart from a genuine resubmission.
package fingerprint

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Payload returns the hex blake2b-256 digest of the compacted JSON payload.
// Insignificant whitespace does not change the result.
func Payload(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("payload cannot be empty")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return "", fmt.Errorf("failed to compact payload: %w", err)
	}

	sum := blake2b.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports whether payload hashes to want.
func Equal(payload json.RawMessage, want string) bool {
	got, err := Payload(payload)
	if err != nil {
		return false
	}
	return got == want
}
