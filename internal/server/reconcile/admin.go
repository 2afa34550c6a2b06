package reconcile

import (
	"context"
	"fmt"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// QueueReport is one page of queue items with per-status totals.
type QueueReport struct {
	Counts map[models.QueueStatus]int `json:"counts"`
	Items  []*models.SyncQueueItem    `json:"items"`
	Total  int                        `json:"total"`
}

// QueueStatus lists queue items matching filter.
func (e *Engine) QueueStatus(ctx context.Context, actor models.Actor, filter storage.QueueFilter) (*QueueReport, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}

	filter.Page = filter.Page.Normalize()
	items, total, err := e.store.ListItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	counts, err := e.store.CountByStatus(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	for _, s := range models.QueueStatuses {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}

	return &QueueReport{Items: items, Total: total, Counts: counts}, nil
}

// Retry moves one failed item back to pending with force sync. Any other
// status is rejected with *models.TransitionError.
func (e *Engine) Retry(ctx context.Context, actor models.Actor, itemID string) (*models.SyncQueueItem, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}

	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	if item.Status != models.QueueStatusFailed {
		return nil, &models.TransitionError{ItemID: itemID, From: item.Status, To: models.QueueStatusPending}
	}

	now := e.clock.Now()
	force := true
	attempts := models.NextAttempts(item.Attempts)
	err = e.store.TransitionItem(ctx, itemID, models.QueueStatusFailed, storage.ItemUpdate{
		To:            models.QueueStatusPending,
		UpdatedAt:     now,
		Attempts:      &attempts,
		ForceSync:     &force,
		NextAttemptAt: &now,
		Result:        models.OkDetail(models.OutcomeRequeued, "manual retry"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retry queue item: %w", err)
	}

	e.logger.Info("Item requeued", "item_id", itemID, "by", actor.Username, "attempts", attempts)

	item, err = e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload queue item: %w", err)
	}
	e.publish(models.EventItemRequeued, item)

	return item, nil
}

// RetryAllFailed moves every failed item back to pending in one statement.
func (e *Engine) RetryAllFailed(ctx context.Context, actor models.Actor) (int64, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return 0, err
	}

	n, err := e.store.RetryAllFailed(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed items: %w", err)
	}

	e.logger.Info("Failed items requeued", "count", n, "by", actor.Username)
	if n > 0 {
		e.publish(models.EventItemRequeued, map[string]int64{"count": n})
	}
	return n, nil
}

// ClearCompleted removes every completed item regardless of age.
func (e *Engine) ClearCompleted(ctx context.Context, actor models.Actor) (int64, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return 0, err
	}

	// Strictly before now; items completed in this very millisecond stay.
	n, err := e.store.DeleteTerminalItems(ctx, models.QueueStatusCompleted, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to clear completed items: %w", err)
	}

	e.logger.Info("Completed items cleared", "count", n, "by", actor.Username)
	return n, nil
}

// SessionLogs returns one page of session logs, newest first.
func (e *Engine) SessionLogs(ctx context.Context, actor models.Actor, filter storage.SessionFilter) ([]*models.SyncSessionLog, int, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, 0, err
	}

	filter.Page = filter.Page.Normalize()
	logs, total, err := e.store.ListSessionLogs(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list session logs: %w", err)
	}
	return logs, total, nil
}

// SessionLog returns one session log.
func (e *Engine) SessionLog(ctx context.Context, actor models.Actor, id string) (*models.SyncSessionLog, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}

	log, err := e.store.GetSessionLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session log: %w", err)
	}
	return log, nil
}
