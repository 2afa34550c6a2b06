package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// CleanupReport is the outcome of one cleanup run.
type CleanupReport struct {
	Audit   *models.CleanupAudit     `json:"audit"`
	Setting *models.RetentionSetting `json:"setting"`
	Counts  models.CleanupCounts     `json:"counts"`
}

// Retention returns the stored retention setting, or the defaults when
// nothing has been stored yet.
func (e *Engine) Retention(ctx context.Context, actor models.Actor) (*models.RetentionSetting, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}
	return e.retention(ctx)
}

func (e *Engine) retention(ctx context.Context) (*models.RetentionSetting, error) {
	setting, err := e.store.GetRetention(ctx, e.cfg.RetentionKey)
	if errors.Is(err, storage.ErrRetentionNotFound) {
		return models.DefaultRetentionSetting(e.cfg.RetentionKey), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retention setting: %w", err)
	}
	return setting, nil
}

// UpdateRetention stores a new policy. Turning auto cleanup on keeps an
// existing schedule or plans the next run a day from now; turning it off
// clears the schedule.
func (e *Engine) UpdateRetention(ctx context.Context, actor models.Actor, policy models.RetentionPolicy, autoEnabled bool) (*models.RetentionSetting, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	setting, err := e.retention(ctx)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	setting.Policy = policy
	setting.AutoCleanupEnabled = autoEnabled
	setting.UpdatedAt = now

	switch {
	case !autoEnabled:
		setting.NextScheduledAt = nil
	case setting.NextScheduledAt == nil:
		next := now.Add(models.Day)
		setting.NextScheduledAt = &next
	}

	if err := e.store.SaveRetention(ctx, setting); err != nil {
		return nil, fmt.Errorf("failed to save retention setting: %w", err)
	}

	e.logger.Info("Retention updated",
		"key", setting.Key,
		"updated_by", actor.Username,
		"completed_days", policy.CompletedDays,
		"failed_days", policy.FailedDays,
		"logs_days", policy.LogsDays,
		"conflicts_days", policy.ConflictsDays,
		"auto_cleanup", autoEnabled,
	)
	e.publish(models.EventRetentionUpdated, setting)

	return setting, nil
}

type cleanupStep struct {
	run   func(ctx context.Context) (int64, error)
	count *int64
	name  string
}

// Cleanup removes terminal records older than the retention horizons. Each
// category is a single statement; the first failing category stops the run,
// which is audited and leaves the schedule untouched.
func (e *Engine) Cleanup(ctx context.Context, actor models.Actor) (*CleanupReport, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}

	setting, err := e.retention(ctx)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	cut := setting.Policy.Cutoffs(now)

	var counts models.CleanupCounts
	steps := []cleanupStep{
		{name: "completed items", count: &counts.Completed, run: func(ctx context.Context) (int64, error) {
			return e.store.DeleteTerminalItems(ctx, models.QueueStatusCompleted, cut.Completed)
		}},
		{name: "failed items", count: &counts.Failed, run: func(ctx context.Context) (int64, error) {
			return e.store.DeleteTerminalItems(ctx, models.QueueStatusFailed, cut.Failed)
		}},
		{name: "session logs", count: &counts.Logs, run: func(ctx context.Context) (int64, error) {
			return e.store.DeleteSessionLogs(ctx, cut.Logs)
		}},
		{name: "resolved conflicts", count: &counts.Conflicts, run: func(ctx context.Context) (int64, error) {
			return e.store.DeleteResolvedConflicts(ctx, cut.Conflicts)
		}},
	}

	audit := &models.CleanupAudit{
		ID:    e.newID(),
		RanAt: now,
		Actor: actor.Username,
	}

	for _, step := range steps {
		n, err := step.run(ctx)
		if err != nil {
			err = fmt.Errorf("failed to clean %s: %w", step.name, err)
			audit.Counts = counts
			audit.Result = models.Err(models.ErrorKindTransient, err.Error())

			if aerr := e.store.SaveCleanupAudit(context.WithoutCancel(ctx), audit); aerr != nil {
				e.logger.Error("Failed to save cleanup audit", "error", aerr)
			}
			e.logger.Error("Cleanup failed",
				"step", step.name,
				"actor", actor.Username,
				"error", err,
			)
			return &CleanupReport{Audit: audit, Setting: setting, Counts: counts}, err
		}
		*step.count = n
	}

	audit.Counts = counts
	audit.Result = models.OkDetail(models.OutcomeCleaned, fmt.Sprintf("%d rows", counts.Total()))
	if err := e.store.SaveCleanupAudit(ctx, audit); err != nil {
		return nil, fmt.Errorf("failed to save cleanup audit: %w", err)
	}

	setting.LastCleanupAt = &now
	setting.UpdatedAt = now
	if setting.AutoCleanupEnabled {
		next := now.Add(models.Day)
		setting.NextScheduledAt = &next
	} else {
		setting.NextScheduledAt = nil
	}
	if err := e.store.SaveRetention(ctx, setting); err != nil {
		return nil, fmt.Errorf("failed to save retention setting: %w", err)
	}

	e.logger.Info("Cleanup finished",
		"actor", actor.Username,
		"completed", counts.Completed,
		"failed", counts.Failed,
		"logs", counts.Logs,
		"conflicts", counts.Conflicts,
	)

	report := &CleanupReport{Audit: audit, Setting: setting, Counts: counts}
	e.publish(models.EventCleanupFinished, report)

	return report, nil
}

// CleanupDue reports whether automatic cleanup should run now.
func (e *Engine) CleanupDue(ctx context.Context) (bool, error) {
	setting, err := e.retention(ctx)
	if err != nil {
		return false, err
	}
	return setting.DueAt(e.clock.Now()), nil
}

// CleanupAudits returns the most recent cleanup audits.
func (e *Engine) CleanupAudits(ctx context.Context, actor models.Actor, limit int) ([]*models.CleanupAudit, error) {
	if err := authorize(actor, models.PermAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultPageLimit
	}

	audits, err := e.store.ListCleanupAudits(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cleanup audits: %w", err)
	}
	return audits, nil
}
