package storage

import "errors"

// Common client storage errors
var (
	// ErrEntryNotFound indicates that no outbox entry has the given sequence
	ErrEntryNotFound = errors.New("outbox entry not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
