package storage

import (
	"context"
	"time"
)

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastPush saves the time of the last successful push
	SaveLastPush(ctx context.Context, at time.Time) error

	// GetLastPush retrieves the time of the last successful push.
	// Returns the zero time if nothing has been pushed yet
	GetLastPush(ctx context.Context) (time.Time, error)
}
