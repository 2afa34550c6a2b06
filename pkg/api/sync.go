package api

import (
	"encoding/json"
	"time"
)

// Mutation is one offline change sent by a device.
type Mutation struct {
	ClientTimestamp *time.Time      `json:"client_timestamp,omitempty"` // device-side edit time
	BaseVersion     *int64          `json:"base_version,omitempty"`     // entity version the edit was made against
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Action          string          `json:"action"` // create, update, delete
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// SubmitRequest is the body of POST /api/v1/sync/submit.
type SubmitRequest struct {
	DeviceID  string     `json:"device_id"`
	Mutations []Mutation `json:"mutations"`
}

// SubmittedItem reports the queue item stored for one mutation.
type SubmittedItem struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Duplicate      bool   `json:"duplicate"` // the key was seen before; ID is the original item
}

// SubmitResponse lists one SubmittedItem per mutation, in request order.
type SubmitResponse struct {
	Items      []SubmittedItem `json:"items"`
	Accepted   int             `json:"accepted"`
	Duplicates int             `json:"duplicates"`
}
