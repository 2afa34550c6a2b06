package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

const queueColumns = `id, seq, device_id, username, entity_type, entity_id, action,
	payload, payload_hash, base_version, idempotency_key, status, attempts,
	force_sync, result, client_timestamp, next_attempt_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*models.SyncQueueItem, error) {
	item := &models.SyncQueueItem{}
	var (
		payload                                 string
		baseVersion                             sql.NullInt64
		idempotencyKey, result                  sql.NullString
		forceSync                               int
		clientTS, nextAttempt, created, updated int64
	)

	err := row.Scan(
		&item.ID,
		&item.Seq,
		&item.DeviceID,
		&item.Username,
		&item.EntityType,
		&item.EntityID,
		&item.Action,
		&payload,
		&item.PayloadHash,
		&baseVersion,
		&idempotencyKey,
		&item.Status,
		&item.Attempts,
		&forceSync,
		&result,
		&clientTS,
		&nextAttempt,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	item.Payload = []byte(payload)
	if baseVersion.Valid {
		v := baseVersion.Int64
		item.BaseVersion = &v
	}
	item.IdempotencyKey = idempotencyKey.String
	item.ForceSync = intToBool(forceSync)
	item.ClientTimestamp = fromMillis(clientTS)
	item.NextAttemptAt = fromMillis(nextAttempt)
	item.CreatedAt = fromMillis(created)
	item.UpdatedAt = fromMillis(updated)

	if result.Valid {
		item.Result, err = models.UnmarshalResult(&result.String)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
	}

	return item, nil
}

func scanItems(rows *sql.Rows) ([]*models.SyncQueueItem, error) {
	defer rows.Close()

	items := make([]*models.SyncQueueItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return items, nil
}

// EnqueueBatch stores all items in one transaction
func (s *Storage) EnqueueBatch(ctx context.Context, items []*models.SyncQueueItem) ([]storage.EnqueueResult, error) {
	results := make([]storage.EnqueueResult, len(items))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, item := range items {
			if item.IdempotencyKey != "" {
				var existingID, existingHash string
				err := tx.QueryRowContext(ctx,
					`SELECT id, payload_hash FROM sync_queue WHERE device_id = ? AND idempotency_key = ?`,
					item.DeviceID, item.IdempotencyKey,
				).Scan(&existingID, &existingHash)

				switch {
				case err == nil:
					if existingHash != item.PayloadHash {
						return &storage.IdempotencyError{Index: i, Key: item.IdempotencyKey}
					}
					results[i] = storage.EnqueueResult{ID: existingID, Duplicate: true}
					continue
				case !errors.Is(err, sql.ErrNoRows):
					return fmt.Errorf("failed to check idempotency key: %w", err)
				}
			}

			seq, err := insertItem(ctx, tx, item)
			if err != nil {
				return err
			}
			item.Seq = seq
			results[i] = storage.EnqueueResult{ID: item.ID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

func insertItem(ctx context.Context, q queryer, item *models.SyncQueueItem) (int64, error) {
	query := `
		INSERT INTO sync_queue (
			id, device_id, username, entity_type, entity_id, action,
			payload, payload_hash, base_version, idempotency_key, status,
			attempts, force_sync, result, client_timestamp, next_attempt_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := models.MarshalResult(item.Result)
	if err != nil {
		return 0, err
	}

	var baseVersion sql.NullInt64
	if item.BaseVersion != nil {
		baseVersion = sql.NullInt64{Int64: *item.BaseVersion, Valid: true}
	}

	res, err := q.ExecContext(ctx, query,
		item.ID,
		item.DeviceID,
		item.Username,
		item.EntityType,
		item.EntityID,
		item.Action,
		string(item.Payload),
		item.PayloadHash,
		baseVersion,
		nullString(item.IdempotencyKey),
		item.Status,
		item.Attempts,
		boolToInt(item.ForceSync),
		result,
		toMillis(item.ClientTimestamp),
		toMillis(item.NextAttemptAt),
		toMillis(item.CreatedAt),
		toMillis(item.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue item: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	return seq, nil
}

// GetItem retrieves a queue item by ID
func (s *Storage) GetItem(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	return getItem(ctx, s.db, id)
}

func getItem(ctx context.Context, q queryer, id string) (*models.SyncQueueItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

func queueWhere(filter storage.QueueFilter, withStatus bool) *where {
	w := &where{}
	if withStatus && filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.DeviceID != "" {
		w.add("device_id = ?", filter.DeviceID)
	}
	if filter.EntityType != "" {
		w.add("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		w.add("entity_id = ?", filter.EntityID)
	}
	w.addRange("created_at", filter.Range)
	return w
}

// ListItems returns one page of items in submission order and the total count
func (s *Storage) ListItems(ctx context.Context, filter storage.QueueFilter) ([]*models.SyncQueueItem, int, error) {
	w := queueWhere(filter, true)
	page := filter.Page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count queue items: %w", err)
	}

	query := `SELECT ` + queueColumns + ` FROM sync_queue` + w.String() + ` ORDER BY seq LIMIT ? OFFSET ?`
	args := append(w.args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query queue items: %w", err)
	}

	items, err := scanItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CountByStatus returns item counts per status; every status is present
func (s *Storage) CountByStatus(ctx context.Context, filter storage.QueueFilter) (map[models.QueueStatus]int, error) {
	w := queueWhere(filter, false)

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue`+w.String()+` GROUP BY status`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int, len(models.QueueStatuses))
	for _, st := range models.QueueStatuses {
		counts[st] = 0
	}

	for rows.Next() {
		var status models.QueueStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return counts, nil
}

// Candidates returns dispatchable pending items, round robin across devices
func (s *Storage) Candidates(ctx context.Context, now time.Time, deviceID string, limit int) ([]*models.SyncQueueItem, error) {
	query := `
		SELECT ` + queueColumns + ` FROM (
			SELECT q.*,
			       ROW_NUMBER() OVER (PARTITION BY q.device_id ORDER BY q.created_at, q.seq) AS lane_rank
			FROM sync_queue q
			WHERE q.status = 'pending'
			  AND q.next_attempt_at <= ?
			  AND (? = '' OR q.device_id = ?)
			  AND NOT EXISTS (
			      SELECT 1 FROM sync_queue p
			      WHERE p.device_id = q.device_id AND p.status = 'processing')
			  AND NOT EXISTS (
			      SELECT 1 FROM sync_queue w
			      WHERE w.device_id = q.device_id AND w.status = 'pending'
			        AND w.next_attempt_at > ? AND w.seq < q.seq)
		) ranked
		ORDER BY lane_rank, created_at, seq
		LIMIT ?
	`

	nowMs := toMillis(now)
	rows, err := s.db.QueryContext(ctx, query, nowMs, deviceID, deviceID, nowMs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select dispatch candidates: %w", err)
	}
	return scanItems(rows)
}

// Claim moves a pending item to processing unless another item for the same
// entity is already processing
func (s *Storage) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE sync_queue
		SET status = 'processing', updated_at = ?
		WHERE id = ? AND status = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM sync_queue p
		      WHERE p.entity_type = sync_queue.entity_type
		        AND p.entity_id = sync_queue.entity_id
		        AND p.status = 'processing')
	`

	res, err := s.db.ExecContext(ctx, query, toMillis(now), id)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim queue item: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TransitionItem performs a conditional status change
func (s *Storage) TransitionItem(ctx context.Context, id string, from models.QueueStatus, upd storage.ItemUpdate) error {
	return transitionItem(ctx, s.db, id, from, upd)
}

func transitionItem(ctx context.Context, q queryer, id string, from models.QueueStatus, upd storage.ItemUpdate) error {
	if err := models.CheckTransition(id, from, upd.To); err != nil {
		return err
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{upd.To, toMillis(upd.UpdatedAt)}

	if upd.Result != nil {
		result, err := models.MarshalResult(upd.Result)
		if err != nil {
			return err
		}
		sets = append(sets, "result = ?")
		args = append(args, result)
	}
	if upd.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *upd.Attempts)
	}
	if upd.NextAttemptAt != nil {
		sets = append(sets, "next_attempt_at = ?")
		args = append(args, toMillis(*upd.NextAttemptAt))
	}
	if upd.ForceSync != nil {
		sets = append(sets, "force_sync = ?")
		args = append(args, boolToInt(*upd.ForceSync))
	}
	if upd.Payload != nil {
		sets = append(sets, "payload = ?", "payload_hash = ?")
		args = append(args, string(upd.Payload), upd.PayloadHash)
	}

	query := `UPDATE sync_queue SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`
	args = append(args, id, from)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: entity of item %s is already processing", storage.ErrStatusChanged, id)
		}
		return fmt.Errorf("failed to update queue item: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var current models.QueueStatus
	err = q.QueryRowContext(ctx, `SELECT status FROM sync_queue WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read queue item status: %w", err)
	}
	return fmt.Errorf("%w: item %s is %s, expected %s", storage.ErrStatusChanged, id, current, from)
}

// ApplyItem applies the mutation and completes the item in one transaction
func (s *Storage) ApplyItem(ctx context.Context, itemID string, mutation models.EntityMutation, now time.Time) (*models.Entity, error) {
	var entity *models.Entity

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		entity, err = applyEntity(ctx, tx, mutation, now)
		if err != nil {
			return err
		}

		return transitionItem(ctx, tx, itemID, models.QueueStatusProcessing, storage.ItemUpdate{
			To:        models.QueueStatusCompleted,
			UpdatedAt: now,
			Result:    models.Ok(models.OutcomeApplied, entity.Version),
		})
	})
	if err != nil {
		return nil, err
	}

	return entity, nil
}

// RecordConflict stores the conflict and parks its item in one transaction
func (s *Storage) RecordConflict(ctx context.Context, conflict *models.SyncConflict, result *models.Result) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertConflict(ctx, tx, conflict); err != nil {
			return err
		}

		return transitionItem(ctx, tx, conflict.SyncQueueID, models.QueueStatusProcessing, storage.ItemUpdate{
			To:        models.QueueStatusConflict,
			UpdatedAt: conflict.CreatedAt,
			Result:    result,
		})
	})
}

// RecoverStale returns abandoned processing items to pending
func (s *Storage) RecoverStale(ctx context.Context, olderThan, now time.Time) (int64, error) {
	result, err := models.MarshalResult(models.OkDetail(models.OutcomeRequeued, "stale claim recovered"))
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = 'pending', next_attempt_at = ?, updated_at = ?, result = ?
		WHERE status = 'processing' AND updated_at < ?
	`, toMillis(now), toMillis(now), result, toMillis(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale items: %w", err)
	}

	return rowsAffected(res)
}

// RetryAllFailed requeues every failed item with force sync
func (s *Storage) RetryAllFailed(ctx context.Context, now time.Time) (int64, error) {
	result, err := models.MarshalResult(models.OkDetail(models.OutcomeRequeued, "manual retry"))
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = 'pending', force_sync = 1, attempts = MIN(attempts + 1, ?),
		    next_attempt_at = ?, updated_at = ?, result = ?
		WHERE status = 'failed'
	`, models.AttemptsCeiling, toMillis(now), toMillis(now), result)
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed items: %w", err)
	}

	return rowsAffected(res)
}

// DeleteTerminalItems removes completed or failed items last updated before `before`
func (s *Storage) DeleteTerminalItems(ctx context.Context, status models.QueueStatus, before time.Time) (int64, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("%w: %s", storage.ErrNotTerminal, status)
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_queue
		WHERE status = ? AND status IN ('completed', 'failed') AND updated_at < ?
	`, status, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s items: %w", status, err)
	}

	return rowsAffected(res)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
