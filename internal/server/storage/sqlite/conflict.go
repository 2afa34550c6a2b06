package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

const conflictColumns = `id, sync_queue_id, entity_type, entity_id, device_id, reason,
	server_data, client_data, server_version, client_timestamp, server_timestamp,
	resolved, resolution_type, resolved_by, resolved_at, created_at`

func insertConflict(ctx context.Context, q queryer, c *models.SyncConflict) error {
	var serverData sql.NullString
	if len(c.ServerData) > 0 && string(c.ServerData) != "null" {
		serverData = sql.NullString{String: string(c.ServerData), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_conflicts (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.SyncQueueID,
		c.EntityType,
		c.EntityID,
		c.DeviceID,
		c.Reason,
		serverData,
		string(c.ClientData),
		c.ServerVersion,
		toMillis(c.ClientTimestamp),
		toMillis(c.ServerTimestamp),
		boolToInt(c.Resolved),
		nullString(string(c.ResolutionType)),
		nullString(c.ResolvedBy),
		nullMillis(c.ResolvedAt),
		toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

func scanConflict(row scanner) (*models.SyncConflict, error) {
	c := &models.SyncConflict{}
	var (
		serverData                  sql.NullString
		clientData                  string
		resolved                    int
		resolutionType, resolvedBy  sql.NullString
		resolvedAt                  sql.NullInt64
		clientTS, serverTS, created int64
	)

	err := row.Scan(
		&c.ID,
		&c.SyncQueueID,
		&c.EntityType,
		&c.EntityID,
		&c.DeviceID,
		&c.Reason,
		&serverData,
		&clientData,
		&c.ServerVersion,
		&clientTS,
		&serverTS,
		&resolved,
		&resolutionType,
		&resolvedBy,
		&resolvedAt,
		&created,
	)
	if err != nil {
		return nil, err
	}

	if serverData.Valid {
		c.ServerData = []byte(serverData.String)
	}
	c.ClientData = []byte(clientData)
	c.Resolved = intToBool(resolved)
	c.ResolutionType = models.ResolutionStrategy(resolutionType.String)
	c.ResolvedBy = resolvedBy.String
	c.ResolvedAt = fromNullMillis(resolvedAt)
	c.ClientTimestamp = fromMillis(clientTS)
	c.ServerTimestamp = fromMillis(serverTS)
	c.CreatedAt = fromMillis(created)

	return c, nil
}

// GetConflict retrieves a conflict by ID
func (s *Storage) GetConflict(ctx context.Context, id string) (*models.SyncConflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM sync_conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return c, nil
}

// ListConflicts returns one page of conflicts, newest first
func (s *Storage) ListConflicts(ctx context.Context, filter storage.ConflictFilter) ([]*models.SyncConflict, int, error) {
	w := &where{}
	if filter.Resolved != nil {
		w.add("resolved = ?", boolToInt(*filter.Resolved))
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
	page := filter.Page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_conflicts`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conflicts: %w", err)
	}

	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts` + w.String() +
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]*models.SyncConflict, 0)
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}
	return conflicts, total, nil
}

// ResolveConflicts marks conflicts resolved and moves their items, all in one
// transaction. Already resolved conflicts are skipped.
func (s *Storage) ResolveConflicts(ctx context.Context, resolutions []storage.ConflictResolution) ([]string, error) {
	var resolved []string

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		resolved = resolved[:0]

		for _, r := range resolutions {
			res, err := tx.ExecContext(ctx, `
				UPDATE sync_conflicts
				SET resolved = 1, resolution_type = ?, resolved_by = ?, resolved_at = ?
				WHERE id = ? AND resolved = 0
			`, r.Strategy, r.ResolvedBy, toMillis(r.ResolvedAt), r.ConflictID)
			if err != nil {
				return fmt.Errorf("failed to resolve conflict %s: %w", r.ConflictID, err)
			}

			n, err := rowsAffected(res)
			if err != nil {
				return err
			}

			if n == 0 {
				var exists int
				if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_conflicts WHERE id = ?`, r.ConflictID).Scan(&exists); err != nil {
					return fmt.Errorf("failed to check conflict: %w", err)
				}
				if exists == 0 {
					return fmt.Errorf("%w: %s", storage.ErrConflictNotFound, r.ConflictID)
				}
				continue
			}

			if err := transitionItem(ctx, tx, r.ItemID, models.QueueStatusConflict, r.Item); err != nil {
				return fmt.Errorf("conflict %s: %w", r.ConflictID, err)
			}
			resolved = append(resolved, r.ConflictID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resolved, nil
}

// DeleteResolvedConflicts removes conflicts resolved before `before`.
// Unresolved conflicts are never touched.
func (s *Storage) DeleteResolvedConflicts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_conflicts
		WHERE resolved = 1 AND resolved_at IS NOT NULL AND resolved_at < ?
	`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolved conflicts: %w", err)
	}

	return rowsAffected(res)
}
