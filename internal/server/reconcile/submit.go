package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/fieldsync/internal/fingerprint"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/internal/validation"
)

// SubmittedItem is the queue item a mutation of the batch maps to.
type SubmittedItem struct {
	ID             string `json:"id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Duplicate      bool   `json:"duplicate"`
}

// SubmitResult lists queue item ids in batch order.
type SubmitResult struct {
	Items      []SubmittedItem `json:"items"`
	Accepted   int             `json:"accepted"`
	Duplicates int             `json:"duplicates"`
}

// Submit validates a device batch and enqueues it atomically. A mutation
// resubmitted under the same idempotency key maps to the existing item.
// Invalid batches return *validation.BatchError and enqueue nothing.
func (e *Engine) Submit(ctx context.Context, actor models.Actor, deviceID string, mutations []models.Mutation) (*SubmitResult, error) {
	if err := authorize(actor, models.PermSubmit); err != nil {
		return nil, err
	}
	if actor.Role == models.RoleDevice && actor.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: device %q may not submit for %q", ErrForbidden, actor.DeviceID, deviceID)
	}

	if err := validation.ValidateBatch(deviceID, mutations); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	items := make([]*models.SyncQueueItem, len(mutations))
	for i, m := range mutations {
		hash, err := fingerprint.Payload(m.Payload)
		if err != nil {
			return nil, &validation.BatchError{Errors: []validation.FieldError{{Index: i, Field: "payload", Message: err.Error()}}}
		}

		clientTS := now
		if m.ClientTimestamp != nil {
			clientTS = m.ClientTimestamp.UTC()
		}

		items[i] = &models.SyncQueueItem{
			ID:              e.newID(),
			DeviceID:        deviceID,
			Username:        actor.Username,
			EntityType:      m.EntityType,
			EntityID:        m.EntityID,
			Action:          m.Action,
			Payload:         m.Payload,
			PayloadHash:     hash,
			BaseVersion:     m.BaseVersion,
			IdempotencyKey:  m.IdempotencyKey,
			Status:          models.QueueStatusPending,
			ClientTimestamp: clientTS,
			NextAttemptAt:   now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	enqueued, err := e.store.EnqueueBatch(ctx, items)
	if err != nil {
		var ierr *storage.IdempotencyError
		if errors.As(err, &ierr) {
			return nil, &validation.BatchError{Errors: []validation.FieldError{{
				Index:   ierr.Index,
				Field:   "idempotency_key",
				Message: "already used with a different payload",
			}}}
		}
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}

	result := &SubmitResult{Items: make([]SubmittedItem, len(enqueued))}
	for i, r := range enqueued {
		result.Items[i] = SubmittedItem{ID: r.ID, IdempotencyKey: mutations[i].IdempotencyKey, Duplicate: r.Duplicate}
		if r.Duplicate {
			result.Duplicates++
		} else {
			result.Accepted++
		}
	}

	e.logger.Info("Batch submitted",
		"device_id", deviceID,
		"username", actor.Username,
		"accepted", result.Accepted,
		"duplicates", result.Duplicates,
	)
	e.publish(models.EventItemsSubmitted, map[string]any{
		"device_id":  deviceID,
		"accepted":   result.Accepted,
		"duplicates": result.Duplicates,
	})

	return result, nil
}
