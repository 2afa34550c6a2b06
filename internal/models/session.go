package models

import "time"

// SessionStatus summarises a dispatch run.
type SessionStatus string

const (
	SessionSuccess SessionStatus = "success"
	SessionPartial SessionStatus = "partial"
	SessionFailed  SessionStatus = "failed"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	return s == SessionSuccess || s == SessionPartial || s == SessionFailed
}

// Trigger records what started a dispatch run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// ItemOutcome is the per-item line of a session's details.
type ItemOutcome struct {
	Result   *Result     `json:"result,omitempty"`
	ItemID   string      `json:"item_id"`
	DeviceID string      `json:"device_id"`
	Status   QueueStatus `json:"status"`
}

// SessionDetails is the structured body of SyncSessionLog.Details.
type SessionDetails struct {
	RunError *ErrResult    `json:"run_error,omitempty"`
	Trigger  Trigger       `json:"trigger"`
	Outcomes []ItemOutcome `json:"outcomes"`
}

// SyncSessionLog is the immutable record of one dispatch run.
type SyncSessionLog struct {
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	ID              string         `json:"id"`
	DeviceID        string         `json:"device_id"` // empty when the run spanned all devices
	Username        string         `json:"username"`
	Status          SessionStatus  `json:"status"`
	Details         SessionDetails `json:"details"`
	ItemsProcessed  int            `json:"items_processed"`
	ItemsSucceeded  int            `json:"items_succeeded"`
	ItemsFailed     int            `json:"items_failed"`
	ItemsConflicted int            `json:"items_conflicted"`
}

// SessionStatusFor derives the run status from its counters: success when
// every processed item succeeded, failed when none did, partial otherwise.
func SessionStatusFor(processed, succeeded int) SessionStatus {
	switch {
	case succeeded == processed:
		return SessionSuccess
	case succeeded == 0:
		return SessionFailed
	default:
		return SessionPartial
	}
}
