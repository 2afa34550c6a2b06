package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// GetRetention retrieves the retention setting stored under key
func (s *Storage) GetRetention(ctx context.Context, key string) (*models.RetentionSetting, error) {
	query := `
		SELECT key, completed_days, failed_days, logs_days, conflicts_days,
		       auto_cleanup_enabled, last_cleanup_at, next_scheduled_at, updated_at
		FROM retention_settings
		WHERE key = ?
	`

	setting := &models.RetentionSetting{}
	var auto int
	var lastCleanup, nextScheduled sql.NullInt64
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&setting.Key,
		&setting.Policy.CompletedDays,
		&setting.Policy.FailedDays,
		&setting.Policy.LogsDays,
		&setting.Policy.ConflictsDays,
		&auto,
		&lastCleanup,
		&nextScheduled,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRetentionNotFound
		}
		return nil, fmt.Errorf("failed to get retention setting: %w", err)
	}

	setting.AutoCleanupEnabled = intToBool(auto)
	setting.LastCleanupAt = fromNullMillis(lastCleanup)
	setting.NextScheduledAt = fromNullMillis(nextScheduled)
	setting.UpdatedAt = fromMillis(updatedAt)

	return setting, nil
}

// SaveRetention creates or replaces a retention setting
func (s *Storage) SaveRetention(ctx context.Context, setting *models.RetentionSetting) error {
	if err := setting.Policy.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retention_settings (
			key, completed_days, failed_days, logs_days, conflicts_days,
			auto_cleanup_enabled, last_cleanup_at, next_scheduled_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			completed_days = excluded.completed_days,
			failed_days = excluded.failed_days,
			logs_days = excluded.logs_days,
			conflicts_days = excluded.conflicts_days,
			auto_cleanup_enabled = excluded.auto_cleanup_enabled,
			last_cleanup_at = excluded.last_cleanup_at,
			next_scheduled_at = excluded.next_scheduled_at,
			updated_at = excluded.updated_at
	`,
		setting.Key,
		setting.Policy.CompletedDays,
		setting.Policy.FailedDays,
		setting.Policy.LogsDays,
		setting.Policy.ConflictsDays,
		boolToInt(setting.AutoCleanupEnabled),
		nullMillis(setting.LastCleanupAt),
		nullMillis(setting.NextScheduledAt),
		toMillis(setting.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save retention setting: %w", err)
	}

	return nil
}

// SaveCleanupAudit inserts an audit row
func (s *Storage) SaveCleanupAudit(ctx context.Context, audit *models.CleanupAudit) error {
	result, err := models.MarshalResult(audit.Result)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("cleanup audit %s has no result", audit.ID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cleanup_audits (
			id, actor, ran_at, completed_deleted, failed_deleted,
			logs_deleted, conflicts_deleted, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		audit.ID,
		audit.Actor,
		toMillis(audit.RanAt),
		audit.Counts.Completed,
		audit.Counts.Failed,
		audit.Counts.Logs,
		audit.Counts.Conflicts,
		*result,
	)
	if err != nil {
		return fmt.Errorf("failed to save cleanup audit: %w", err)
	}

	return nil
}

// ListCleanupAudits returns the most recent audits first
func (s *Storage) ListCleanupAudits(ctx context.Context, limit int) ([]*models.CleanupAudit, error) {
	limit = storage.Page{Limit: limit}.Normalize().Limit

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, ran_at, completed_deleted, failed_deleted,
		       logs_deleted, conflicts_deleted, result
		FROM cleanup_audits
		ORDER BY ran_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cleanup audits: %w", err)
	}
	defer rows.Close()

	audits := make([]*models.CleanupAudit, 0)
	for rows.Next() {
		audit := &models.CleanupAudit{}
		var ranAt int64
		var result string

		if err := rows.Scan(
			&audit.ID,
			&audit.Actor,
			&ranAt,
			&audit.Counts.Completed,
			&audit.Counts.Failed,
			&audit.Counts.Logs,
			&audit.Counts.Conflicts,
			&result,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cleanup audit: %w", err)
		}

		audit.RanAt = fromMillis(ranAt)
		if audit.Result, err = models.UnmarshalResult(&result); err != nil {
			return nil, err
		}
		audits = append(audits, audit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return audits, nil
}
