package models

import (
	"encoding/json"
	"time"
)

// EntityKey identifies one record in the entity store.
type EntityKey struct {
	Type string
	ID   string
}

// String renders the key as "type/id".
func (k EntityKey) String() string {
	return k.Type + "/" + k.ID
}

// Entity is an authoritative server-side record. Version increases by one on
// every applied mutation; a delete leaves a tombstone.
type Entity struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Version   int64           `json:"version"`
	Deleted   bool            `json:"deleted"`
}

// EntityMutation is a write request against the entity store.
type EntityMutation struct {
	// ExpectedVersion guards the write; nil forces it through.
	ExpectedVersion *int64
	Type            string
	ID              string
	Action          Action
	Payload         json.RawMessage
}
