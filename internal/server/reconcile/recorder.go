package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// Recorder accumulates the outcomes of one dispatch run and writes exactly
// one SyncSessionLog when the run finishes. Add is safe for concurrent use.
type Recorder struct {
	store  storage.SessionLogStorage
	clock  Clock
	log    models.SyncSessionLog
	mu     sync.Mutex
	closed bool
}

// NewRecorder starts a session for actor, scoped to deviceID (empty for all devices).
func NewRecorder(store storage.SessionLogStorage, clock Clock, id string, actor models.Actor, deviceID string, trigger models.Trigger) *Recorder {
	return &Recorder{
		store: store,
		clock: clock,
		log: models.SyncSessionLog{
			ID:        id,
			DeviceID:  deviceID,
			Username:  actor.Username,
			StartTime: clock.Now(),
			Details: models.SessionDetails{
				Trigger:  trigger,
				Outcomes: make([]models.ItemOutcome, 0),
			},
		},
	}
}

// Add records the final status of one processed item.
func (r *Recorder) Add(outcome models.ItemOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.ItemsProcessed++
	switch outcome.Status {
	case models.QueueStatusCompleted:
		r.log.ItemsSucceeded++
	case models.QueueStatusConflict:
		r.log.ItemsConflicted++
	default:
		// failed, requeued after a transient error, or stuck in processing
		r.log.ItemsFailed++
	}
	r.log.Details.Outcomes = append(r.log.Details.Outcomes, outcome)
}

// Fail attaches a run-level error, e.g. when candidates could not be selected.
func (r *Recorder) Fail(kind models.ErrorKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Details.RunError = &models.ErrResult{Kind: kind, Message: err.Error()}
}

// Snapshot returns a copy of the current counters.
func (r *Recorder) Snapshot() models.SyncSessionLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.log
	snap.Details.Outcomes = append([]models.ItemOutcome(nil), r.log.Details.Outcomes...)
	return snap
}

// Finish computes the status and persists the log. A second call returns
// ErrSessionFinished and writes nothing.
func (r *Recorder) Finish(ctx context.Context) (*models.SyncSessionLog, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionFinished
	}
	r.closed = true

	r.log.EndTime = r.clock.Now()
	r.log.Status = models.SessionStatusFor(r.log.ItemsProcessed, r.log.ItemsSucceeded)
	if r.log.Details.RunError != nil && r.log.ItemsProcessed == 0 {
		r.log.Status = models.SessionFailed
	}
	log := r.log
	r.mu.Unlock()

	if err := r.store.SaveSessionLog(ctx, &log); err != nil {
		return &log, fmt.Errorf("failed to save session log: %w", err)
	}
	return &log, nil
}
