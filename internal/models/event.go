package models

import "time"

// EventType names an engine notification.
type EventType string

const (
	EventItemsSubmitted   EventType = "items.submitted"
	EventItemProcessed    EventType = "item.processed"
	EventItemRequeued     EventType = "item.requeued"
	EventConflictResolved EventType = "conflict.resolved"
	EventSessionFinished  EventType = "session.finished"
	EventCleanupFinished  EventType = "cleanup.finished"
	EventRetentionUpdated EventType = "retention.updated"
)

// Event is a best-effort notification about an engine state change, fanned
// out to admin dashboards. Events are never persisted.
type Event struct {
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
	Type EventType `json:"type"`
}
