package models

import "fmt"

// allowedTransitions is the complete queue item state machine. Any pair not
// listed here is unreachable.
var allowedTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusPending: {QueueStatusProcessing},
	QueueStatusProcessing: {
		QueueStatusCompleted,
		QueueStatusFailed,
		QueueStatusConflict,
		QueueStatusPending, // retryable failure or stale claim recovery
	},
	QueueStatusFailed:   {QueueStatusPending},
	QueueStatusConflict: {QueueStatusPending, QueueStatusCompleted},
}

// CanTransition reports whether a queue item may move from one status to another.
func CanTransition(from, to QueueStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	ItemID string
	From   QueueStatus
	To     QueueStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("queue item %s: transition %s -> %s is not allowed", e.ItemID, e.From, e.To)
}

// CheckTransition returns a *TransitionError when the move is not allowed.
func CheckTransition(itemID string, from, to QueueStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{ItemID: itemID, From: from, To: to}
}
