package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

const sessionColumns = `id, device_id, username, start_time, end_time, status,
	items_processed, items_succeeded, items_failed, items_conflicted, details`

// SaveSessionLog inserts a finished session log
func (s *Storage) SaveSessionLog(ctx context.Context, log *models.SyncSessionLog) error {
	details, err := json.Marshal(log.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal session details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_session_logs (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		log.ID,
		log.DeviceID,
		log.Username,
		toMillis(log.StartTime),
		toMillis(log.EndTime),
		log.Status,
		log.ItemsProcessed,
		log.ItemsSucceeded,
		log.ItemsFailed,
		log.ItemsConflicted,
		string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to save session log: %w", err)
	}

	return nil
}

func scanSession(row scanner) (*models.SyncSessionLog, error) {
	log := &models.SyncSessionLog{}
	var start, end int64
	var details string

	err := row.Scan(
		&log.ID,
		&log.DeviceID,
		&log.Username,
		&start,
		&end,
		&log.Status,
		&log.ItemsProcessed,
		&log.ItemsSucceeded,
		&log.ItemsFailed,
		&log.ItemsConflicted,
		&details,
	)
	if err != nil {
		return nil, err
	}

	log.StartTime = fromMillis(start)
	log.EndTime = fromMillis(end)
	if err := json.Unmarshal([]byte(details), &log.Details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session details: %w", err)
	}

	return log, nil
}

// GetSessionLog retrieves a session log by ID
func (s *Storage) GetSessionLog(ctx context.Context, id string) (*models.SyncSessionLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sync_session_logs WHERE id = ?`, id)

	log, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session log: %w", err)
	}
	return log, nil
}

// ListSessionLogs returns one page of logs, newest first
func (s *Storage) ListSessionLogs(ctx context.Context, filter storage.SessionFilter) ([]*models.SyncSessionLog, int, error) {
	w := &where{}
	if filter.DeviceID != "" {
		w.add("device_id = ?", filter.DeviceID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	w.addRange("start_time", filter.Range)
	page := filter.Page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_session_logs`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count session logs: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM sync_session_logs` + w.String() +
		` ORDER BY start_time DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query session logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.SyncSessionLog, 0)
	for rows.Next() {
		log, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}
	return logs, total, nil
}

// DeleteSessionLogs removes logs that ended before `before`
func (s *Storage) DeleteSessionLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_session_logs WHERE end_time < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete session logs: %w", err)
	}

	return rowsAffected(res)
}
