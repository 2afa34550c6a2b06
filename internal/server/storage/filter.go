package storage

import (
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

const (
	// DefaultPageLimit is used when a filter does not set a limit
	DefaultPageLimit = 50
	// MaxPageLimit caps any single page
	MaxPageLimit = 500
)

// Page selects a window of an ordered listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies default and maximum limits.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TimeRange bounds a listing by creation or start time. Zero values are open ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// QueueFilter narrows queue item listings.
type QueueFilter struct {
	Range      TimeRange
	Status     models.QueueStatus
	DeviceID   string
	EntityType string
	EntityID   string
	Page       Page
}

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	Range      TimeRange
	Resolved   *bool
	DeviceID   string
	EntityType string
	EntityID   string
	Page       Page
}

// SessionFilter narrows session log listings.
type SessionFilter struct {
	Range    TimeRange
	DeviceID string
	Status   models.SessionStatus
	Page     Page
}
