package storage

import (
	"context"

	"github.com/iudanet/fieldsync/internal/models"
)

// EntityStorage defines interface for the authoritative entity store
type EntityStorage interface {
	// GetEntity retrieves an entity including tombstones
	// Returns ErrEntityNotFound if entity doesn't exist
	GetEntity(ctx context.Context, entityType, id string) (*models.Entity, error)
}

// Store is the full persistence surface used by the reconcile engine.
type Store interface {
	QueueStorage
	ConflictStorage
	SessionLogStorage
	RetentionStorage
	EntityStorage
}
