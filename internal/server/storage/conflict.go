package storage

import (
	"context"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

// ConflictResolution marks one conflict resolved and moves its queue item.
type ConflictResolution struct {
	ResolvedAt time.Time
	ConflictID string
	ItemID     string
	ResolvedBy string
	Strategy   models.ResolutionStrategy
	Item       ItemUpdate // applied to the item, which must be in conflict status
}

// ConflictStorage defines interface for sync conflict persistence
type ConflictStorage interface {
	// GetConflict retrieves a conflict by ID
	// Returns ErrConflictNotFound if conflict doesn't exist
	GetConflict(ctx context.Context, id string) (*models.SyncConflict, error)

	// ListConflicts returns one page of conflicts, newest first, and the total count
	ListConflicts(ctx context.Context, filter ConflictFilter) ([]*models.SyncConflict, int, error)

	// ResolveConflicts applies all resolutions in one transaction.
	// Conflicts that are already resolved are skipped; the returned slice
	// holds the ids that this call resolved.
	ResolveConflicts(ctx context.Context, resolutions []ConflictResolution) ([]string, error)

	// DeleteResolvedConflicts removes resolved conflicts resolved before `before`
	DeleteResolvedConflicts(ctx context.Context, before time.Time) (int64, error)
}
