package models

import (
	"encoding/json"
	"time"
)

// QueueStatus is the lifecycle state of a SyncQueueItem.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusConflict   QueueStatus = "conflict"
)

// QueueStatuses lists every status in display order.
var QueueStatuses = []QueueStatus{
	QueueStatusPending,
	QueueStatusProcessing,
	QueueStatusCompleted,
	QueueStatusFailed,
	QueueStatusConflict,
}

// Valid reports whether s is a known queue status.
func (s QueueStatus) Valid() bool {
	for _, known := range QueueStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status may be removed by retention cleanup.
// Conflict items are blocking and never count as terminal.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// Action is the kind of mutation a client queued.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a supported action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// AttemptsCeiling caps SyncQueueItem.Attempts regardless of configured retries.
const AttemptsCeiling = 100

// SyncQueueItem is one client-submitted mutation awaiting application to the
// entity store.
type SyncQueueItem struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ClientTimestamp time.Time       `json:"client_timestamp"`
	NextAttemptAt   time.Time       `json:"next_attempt_at"`
	BaseVersion     *int64          `json:"base_version,omitempty"` // nil when the client did not know the version
	Result          *Result         `json:"result,omitempty"`
	ID              string          `json:"id"`
	DeviceID        string          `json:"device_id"`
	Username        string          `json:"username"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Action          Action          `json:"action"`
	Status          QueueStatus     `json:"status"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	PayloadHash     string          `json:"payload_hash"`
	Payload         json.RawMessage `json:"payload"`
	Seq             int64           `json:"seq"`
	Attempts        int             `json:"attempts"`
	ForceSync       bool            `json:"force_sync"`
}

// EntityKey identifies the entity the item mutates.
func (i *SyncQueueItem) EntityKey() EntityKey {
	return EntityKey{Type: i.EntityType, ID: i.EntityID}
}

// Mutation is a single client change as received from a device, before it
// becomes a queue item.
type Mutation struct {
	ClientTimestamp *time.Time      `json:"client_timestamp,omitempty"`
	BaseVersion     *int64          `json:"base_version,omitempty"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Action          Action          `json:"action"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// NextAttempts increments attempts, clamped at AttemptsCeiling.
func NextAttempts(attempts int) int {
	if attempts >= AttemptsCeiling {
		return AttemptsCeiling
	}
	return attempts + 1
}
