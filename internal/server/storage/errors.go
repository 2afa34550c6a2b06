package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrItemNotFound indicates that a sync queue item was not found
	ErrItemNotFound = errors.New("queue item not found")

	// ErrStatusChanged indicates that a queue item left the expected status
	// before a conditional update could run
	ErrStatusChanged = errors.New("queue item status changed")

	// ErrConflictNotFound indicates that a sync conflict was not found
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrSessionNotFound indicates that a session log was not found
	ErrSessionNotFound = errors.New("session log not found")

	// ErrRetentionNotFound indicates that no retention setting is stored for a key
	ErrRetentionNotFound = errors.New("retention setting not found")

	// ErrEntityNotFound indicates that an entity does not exist
	ErrEntityNotFound = errors.New("entity not found")

	// ErrVersionMismatch indicates that the entity version moved since detection
	ErrVersionMismatch = errors.New("entity version mismatch")

	// ErrMalformedPayload indicates a payload the entity store cannot apply
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrIdempotencyMismatch indicates an idempotency key reused with a different payload
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different payload")

	// ErrNotTerminal indicates an attempt to delete queue items in a non-terminal status
	ErrNotTerminal = errors.New("status is not terminal")
)

// IdempotencyError reports which mutation of a batch reused a key.
type IdempotencyError struct {
	Key   string
	Index int
}

func (e *IdempotencyError) Error() string {
	return fmt.Sprintf("mutation %d: %s: %q", e.Index, ErrIdempotencyMismatch, e.Key)
}

// Is makes errors.Is(err, ErrIdempotencyMismatch) match.
func (e *IdempotencyError) Is(target error) bool {
	return target == ErrIdempotencyMismatch
}
