package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

// EnqueueResult is the outcome of storing one item of a batch.
type EnqueueResult struct {
	ID string
	// Duplicate is true when the idempotency key matched an existing item
	// with the same payload; ID is then the existing item's id.
	Duplicate bool
}

// ItemUpdate describes a conditional status change of a queue item.
// Nil pointer fields are left unchanged.
type ItemUpdate struct {
	UpdatedAt     time.Time
	Result        *models.Result
	Attempts      *int
	NextAttemptAt *time.Time
	ForceSync     *bool
	To            models.QueueStatus
	PayloadHash   string
	Payload       json.RawMessage // replaces the payload when non-nil
}

// QueueStorage defines interface for sync queue persistence
type QueueStorage interface {
	// EnqueueBatch stores all items in one transaction. An item whose
	// (device_id, idempotency_key) already exists is not inserted again.
	// Returns *IdempotencyError and stores nothing if a key is reused with a
	// different payload hash.
	EnqueueBatch(ctx context.Context, items []*models.SyncQueueItem) ([]EnqueueResult, error)

	// GetItem retrieves a queue item by ID
	// Returns ErrItemNotFound if item doesn't exist
	GetItem(ctx context.Context, id string) (*models.SyncQueueItem, error)

	// ListItems returns one page of items ordered by submission and the total
	// number of items matching the filter
	ListItems(ctx context.Context, filter QueueFilter) ([]*models.SyncQueueItem, int, error)

	// CountByStatus returns the number of items per status, ignoring filter.Status
	CountByStatus(ctx context.Context, filter QueueFilter) (map[models.QueueStatus]int, error)

	// Candidates returns up to limit dispatchable pending items: FIFO inside a
	// device, interleaved round robin across devices. A device with a
	// processing item is skipped, and so are items queued behind a pending
	// item that is still backing off.
	Candidates(ctx context.Context, now time.Time, deviceID string, limit int) ([]*models.SyncQueueItem, error)

	// Claim moves a pending item to processing if no other item for the same
	// entity is processing. Returns false when another worker won.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)

	// TransitionItem changes status from `from` to upd.To if the item is
	// still in `from`. Returns ErrStatusChanged otherwise.
	TransitionItem(ctx context.Context, id string, from models.QueueStatus, upd ItemUpdate) error

	// ApplyItem writes mutation to the entity store and completes the
	// processing item in a single transaction.
	ApplyItem(ctx context.Context, itemID string, mutation models.EntityMutation, now time.Time) (*models.Entity, error)

	// RecordConflict stores conflict and moves its processing item to the
	// conflict status in a single transaction.
	RecordConflict(ctx context.Context, conflict *models.SyncConflict, result *models.Result) error

	// RecoverStale returns processing items not touched since olderThan to pending
	RecoverStale(ctx context.Context, olderThan, now time.Time) (int64, error)

	// RetryAllFailed moves every failed item to pending with force sync in one statement
	RetryAllFailed(ctx context.Context, now time.Time) (int64, error)

	// DeleteTerminalItems removes items in a terminal status last updated before
	// `before`. Returns ErrNotTerminal for any other status.
	DeleteTerminalItems(ctx context.Context, status models.QueueStatus, before time.Time) (int64, error)
}
