package reconcile

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// DispatchOptions controls one dispatch run.
type DispatchOptions struct {
	// DeviceID restricts the run to one device; empty means all devices
	DeviceID string
	Trigger  models.Trigger
	// Limit caps the number of selected items; 0 uses Config.BatchLimit
	Limit int
}

// lane is the ordered slice of one device's candidates.
type lane struct {
	deviceID string
	items    []*models.SyncQueueItem
}

// Dispatch runs one pass over the pending queue and returns the session log
// it wrote. The log is written even when ctx is cancelled mid-run; the
// cancellation is then returned alongside it.
func (e *Engine) Dispatch(ctx context.Context, actor models.Actor, opts DispatchOptions) (*models.SyncSessionLog, error) {
	if err := authorize(actor, models.PermDispatch); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.BatchLimit
	}
	if opts.Trigger == "" {
		opts.Trigger = models.TriggerManual
	}

	rec := NewRecorder(e.store, e.clock, e.newID(), actor, opts.DeviceID, opts.Trigger)

	candidates, err := e.store.Candidates(ctx, e.clock.Now(), opts.DeviceID, limit)
	if err != nil {
		rec.Fail(models.ErrorKindTransient, err)
		log, _ := e.finish(ctx, rec)
		return log, fmt.Errorf("failed to select candidates: %w", err)
	}

	lanes := groupLanes(candidates)
	e.logger.Debug("Dispatch started",
		"session_id", rec.log.ID,
		"candidates", len(candidates),
		"lanes", len(lanes),
		"trigger", opts.Trigger,
	)

	runErr := e.runLanes(ctx, lanes, rec)

	log, err := e.finish(ctx, rec)
	if err != nil {
		return log, err
	}
	if runErr != nil {
		return log, runErr
	}
	return log, nil
}

func (e *Engine) finish(ctx context.Context, rec *Recorder) (*models.SyncSessionLog, error) {
	log, err := rec.Finish(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Error("Failed to write session log", "error", err)
		return log, err
	}

	e.logger.Info("Dispatch finished",
		"session_id", log.ID,
		"status", log.Status,
		"processed", log.ItemsProcessed,
		"succeeded", log.ItemsSucceeded,
		"failed", log.ItemsFailed,
		"conflicted", log.ItemsConflicted,
		"duration", log.EndTime.Sub(log.StartTime),
	)
	e.publish(models.EventSessionFinished, log)
	return log, nil
}

// groupLanes splits candidates per device, keeping the device order of first
// appearance and the item order inside each device.
func groupLanes(items []*models.SyncQueueItem) []lane {
	index := make(map[string]int)
	var lanes []lane

	for _, item := range items {
		i, ok := index[item.DeviceID]
		if !ok {
			i = len(lanes)
			index[item.DeviceID] = i
			lanes = append(lanes, lane{deviceID: item.DeviceID})
		}
		lanes[i].items = append(lanes[i].items, item)
	}
	return lanes
}

// runLanes runs lanes with at most cfg.Workers in flight. No new lane
// starts once ctx is done.
func (e *Engine) runLanes(ctx context.Context, lanes []lane, rec *Recorder) error {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)

	for _, l := range lanes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.runLane(ctx, l, rec)
			return nil
		})
	}

	// Item failures are recorded per item, lanes themselves never fail.
	_ = g.Wait()
	return ctx.Err()
}

// runLane processes one device's items in submission order. The lane stops
// early when an item could not be claimed or was requeued, so later items of
// the same device never overtake it.
func (e *Engine) runLane(ctx context.Context, l lane, rec *Recorder) {
	unlock := e.devices.Lock(l.deviceID)
	defer unlock()

	for _, item := range l.items {
		if ctx.Err() != nil {
			return
		}
		if !e.processItem(ctx, item, rec) {
			return
		}
	}
}

// processItem claims and handles one item. It returns false when the lane
// must stop.
func (e *Engine) processItem(ctx context.Context, item *models.SyncQueueItem, rec *Recorder) bool {
	claimed, err := e.store.Claim(ctx, item.ID, e.clock.Now())
	if err != nil {
		e.logger.Error("Failed to claim item", "item_id", item.ID, "error", err)
		return false
	}
	if !claimed {
		e.logger.Debug("Item claimed elsewhere", "item_id", item.ID)
		return false
	}

	unlock := e.entities.Lock(item.EntityKey().String())
	defer unlock()

	item.Status = models.QueueStatusProcessing

	// The claim is ours now: finish it even if the run is being cancelled.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.TxTimeout)
	defer cancel()

	outcome := e.handle(txCtx, item)
	rec.Add(outcome)
	e.publish(models.EventItemProcessed, outcome)

	return outcome.Status != models.QueueStatusPending && outcome.Status != models.QueueStatusProcessing
}

// handle runs detection and apply for a claimed item.
func (e *Engine) handle(ctx context.Context, item *models.SyncQueueItem) models.ItemOutcome {
	var expected *int64
	if !item.ForceSync {
		det, err := e.detector.Detect(ctx, item)
		if err != nil {
			return e.fail(ctx, item, err)
		}
		if det.Verdict == Conflicting {
			return e.recordConflict(ctx, item, det)
		}
		v := det.Version()
		expected = &v
	}

	entity, err := e.store.ApplyItem(ctx, item.ID, models.EntityMutation{
		ExpectedVersion: expected,
		Type:            item.EntityType,
		ID:              item.EntityID,
		Action:          item.Action,
		Payload:         item.Payload,
	}, e.clock.Now())

	switch {
	case err == nil:
		e.logger.Debug("Item applied", "item_id", item.ID, "entity", item.EntityKey().String(), "version", entity.Version)
		return models.ItemOutcome{
			ItemID:   item.ID,
			DeviceID: item.DeviceID,
			Status:   models.QueueStatusCompleted,
			Result:   models.Ok(models.OutcomeApplied, entity.Version),
		}

	case errors.Is(err, storage.ErrVersionMismatch) && !item.ForceSync:
		// The entity moved between detection and apply.
		det, derr := e.detector.Detect(ctx, item)
		if derr != nil {
			return e.fail(ctx, item, derr)
		}
		if det.Verdict == Conflicting {
			return e.recordConflict(ctx, item, det)
		}
		return e.fail(ctx, item, err)

	default:
		return e.fail(ctx, item, err)
	}
}

func (e *Engine) recordConflict(ctx context.Context, item *models.SyncQueueItem, det Detection) models.ItemOutcome {
	now := e.clock.Now()
	conflict := &models.SyncConflict{
		ID:              e.newID(),
		SyncQueueID:     item.ID,
		EntityType:      item.EntityType,
		EntityID:        item.EntityID,
		DeviceID:        item.DeviceID,
		Reason:          det.Reason,
		ClientData:      item.Payload,
		ClientTimestamp: item.ClientTimestamp,
		ServerTimestamp: now,
		CreatedAt:       now,
	}
	if det.Server != nil {
		conflict.ServerData = det.Server.Data
		conflict.ServerVersion = det.Server.Version
		conflict.ServerTimestamp = det.Server.UpdatedAt
	}

	result := models.OkDetail(models.OutcomeConflict, string(det.Reason))
	if err := e.store.RecordConflict(ctx, conflict, result); err != nil {
		return e.fail(ctx, item, err)
	}

	e.logger.Info("Conflict detected",
		"item_id", item.ID,
		"conflict_id", conflict.ID,
		"entity", item.EntityKey().String(),
		"reason", det.Reason,
	)

	return models.ItemOutcome{
		ItemID:   item.ID,
		DeviceID: item.DeviceID,
		Status:   models.QueueStatusConflict,
		Result:   result,
	}
}

// classify decides whether a failure is worth retrying.
func classify(err error) models.ErrorKind {
	switch {
	case errors.Is(err, storage.ErrMalformedPayload),
		errors.Is(err, storage.ErrEntityNotFound):
		return models.ErrorKindPermanent
	default:
		return models.ErrorKindTransient
	}
}

// fail moves a processing item to failed, or back to pending with backoff
// when the error is transient and attempts remain.
func (e *Engine) fail(ctx context.Context, item *models.SyncQueueItem, cause error) models.ItemOutcome {
	now := e.clock.Now()
	kind := classify(cause)
	attempts := models.NextAttempts(item.Attempts)

	upd := storage.ItemUpdate{
		To:        models.QueueStatusFailed,
		UpdatedAt: now,
		Attempts:  &attempts,
		Result:    models.Err(kind, cause.Error()),
	}

	if kind == models.ErrorKindTransient && attempts < e.cfg.MaxAttempts {
		next := now.Add(e.cfg.Backoff(attempts))
		upd.To = models.QueueStatusPending
		upd.NextAttemptAt = &next
	}

	outcome := models.ItemOutcome{ItemID: item.ID, DeviceID: item.DeviceID, Status: upd.To, Result: upd.Result}

	if err := e.store.TransitionItem(ctx, item.ID, models.QueueStatusProcessing, upd); err != nil {
		// Left in processing; stale recovery will pick it up.
		e.logger.Error("Failed to record item failure",
			"item_id", item.ID,
			"cause", cause,
			"error", err,
		)
		outcome.Status = models.QueueStatusProcessing
		return outcome
	}

	level := e.logger.Warn
	if upd.To == models.QueueStatusFailed {
		level = e.logger.Error
	}
	level("Item failed",
		"item_id", item.ID,
		"entity", item.EntityKey().String(),
		"kind", kind,
		"attempts", attempts,
		"status", upd.To,
		"error", cause,
	)

	return outcome
}

// RecoverStale returns items stuck in processing for longer than
// Config.StaleAfter to pending.
func (e *Engine) RecoverStale(ctx context.Context, actor models.Actor) (int64, error) {
	if err := authorize(actor, models.PermDispatch); err != nil {
		return 0, err
	}

	now := e.clock.Now()
	n, err := e.store.RecoverStale(ctx, now.Add(-e.cfg.StaleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale items: %w", err)
	}

	if n > 0 {
		e.logger.Warn("Recovered stale processing items", "count", n, "older_than", e.cfg.StaleAfter)
	}
	return n, nil
}
