package models

import (
	"encoding/json"
	"time"
)

// ResolutionStrategy names a policy that turns a conflict into a final state.
type ResolutionStrategy string

const (
	StrategyServerWins ResolutionStrategy = "server_wins"
	StrategyClientWins ResolutionStrategy = "client_wins"
	StrategyMerge      ResolutionStrategy = "merge"
)

// ConflictReason records why the detector flagged an item.
type ConflictReason string

const (
	ReasonStaleBaseVersion   ConflictReason = "stale_base_version"
	ReasonMissingBaseVersion ConflictReason = "missing_base_version"
	ReasonBaseVersionAhead   ConflictReason = "base_version_ahead"
	ReasonEntityDeleted      ConflictReason = "entity_deleted"
	ReasonEntityMissing      ConflictReason = "entity_missing"
)

// SyncConflict is a detected divergence between a queued mutation and the
// entity store. It is one-to-one with a conflict-status queue item and is
// immutable once Resolved is true.
type SyncConflict struct {
	CreatedAt       time.Time          `json:"created_at"`
	ClientTimestamp time.Time          `json:"client_timestamp"`
	ServerTimestamp time.Time          `json:"server_timestamp"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	ID              string             `json:"id"`
	SyncQueueID     string             `json:"sync_queue_id"`
	EntityType      string             `json:"entity_type"`
	EntityID        string             `json:"entity_id"`
	DeviceID        string             `json:"device_id"`
	Reason          ConflictReason     `json:"reason"`
	ResolutionType  ResolutionStrategy `json:"resolution_type,omitempty"`
	ResolvedBy      string             `json:"resolved_by,omitempty"`
	ServerData      json.RawMessage    `json:"server_data"` // snapshot at detection, null when the entity did not exist
	ClientData      json.RawMessage    `json:"client_data"`
	ServerVersion   int64              `json:"server_version"`
	Resolved        bool               `json:"resolved"`
}

// Resolution is what a strategy decided for one conflict.
type Resolution struct {
	Strategy ResolutionStrategy
	// Complete finishes the queue item without touching the entity store.
	// Otherwise the item is requeued with force sync.
	Complete bool
	// Payload replaces the queued payload when non-nil.
	Payload json.RawMessage
}

// ResolveCounts summarises the effect of a resolve call.
type ResolveCounts struct {
	Resolved  int `json:"resolved"`
	Requeued  int `json:"requeued"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
}
