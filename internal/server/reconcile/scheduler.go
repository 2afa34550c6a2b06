package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

// Runner is an unattended background loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler dispatches the queue periodically as the system actor. While a
// pass finds work the next one starts immediately.
type Scheduler struct {
	engine   *Engine
	logger   *slog.Logger
	actor    models.Actor
	interval time.Duration
}

// NewScheduler creates a dispatch loop firing every interval.
func NewScheduler(logger *slog.Logger, engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		logger:   logger,
		actor:    models.SystemActor("dispatch-scheduler"),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Dispatch scheduler started", "interval", s.interval)

	if _, err := s.engine.RecoverStale(ctx, s.actor); err != nil {
		s.logger.Error("Failed to recover stale items", "error", err)
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch scheduler stopped")
			return nil
		case <-timer.C:
		}

		log, err := s.engine.Dispatch(ctx, s.actor, DispatchOptions{Trigger: models.TriggerScheduled})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Scheduled dispatch failed", "error", err)
		}

		timer.Reset(nextDue(s.interval, log))
	}
}

// CleanupScheduler runs retention cleanup when the stored schedule says it
// is due, checking every interval.
type CleanupScheduler struct {
	engine   *Engine
	logger   *slog.Logger
	actor    models.Actor
	interval time.Duration
}

// NewCleanupScheduler creates a cleanup loop checking every interval.
func NewCleanupScheduler(logger *slog.Logger, engine *Engine, interval time.Duration) *CleanupScheduler {
	return &CleanupScheduler{
		engine:   engine,
		logger:   logger,
		actor:    models.SystemActor("cleanup-scheduler"),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (s *CleanupScheduler) Run(ctx context.Context) error {
	s.logger.Info("Cleanup scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs one cleanup if due and reports whether it ran.
func (s *CleanupScheduler) tick(ctx context.Context) bool {
	due, err := s.engine.CleanupDue(ctx)
	if err != nil {
		s.logger.Error("Failed to read retention schedule", "error", err)
		return false
	}
	if !due {
		return false
	}

	// Failures are audited and logged by Cleanup itself.
	_, _ = s.engine.Cleanup(ctx, s.actor)
	return true
}

// nextDue is how long the dispatch loop waits after a pass: no wait when the
// pass processed something, interval otherwise.
func nextDue(interval time.Duration, log *models.SyncSessionLog) time.Duration {
	if log != nil && log.ItemsProcessed > 0 {
		return 0
	}
	return interval
}
