package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// GetEntity retrieves an entity including tombstones
func (s *Storage) GetEntity(ctx context.Context, entityType, id string) (*models.Entity, error) {
	return getEntity(ctx, s.db, entityType, id)
}

func getEntity(ctx context.Context, q queryer, entityType, id string) (*models.Entity, error) {
	query := `
		SELECT type, id, version, data, deleted, updated_at
		FROM entities
		WHERE type = ? AND id = ?
	`

	entity := &models.Entity{}
	var data string
	var deleted int
	var updatedAt int64

	err := q.QueryRowContext(ctx, query, entityType, id).Scan(
		&entity.Type,
		&entity.ID,
		&entity.Version,
		&data,
		&deleted,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	entity.Data = []byte(data)
	entity.Deleted = intToBool(deleted)
	entity.UpdatedAt = fromMillis(updatedAt)

	return entity, nil
}

// applyEntity is the single write path into the entity store. The current
// version (0 when the entity does not exist) must equal ExpectedVersion
// unless it is nil. Only create may bring a missing entity into being.
// Every successful write bumps the version by one.
func applyEntity(ctx context.Context, q queryer, m models.EntityMutation, now time.Time) (*models.Entity, error) {
	key := models.EntityKey{Type: m.Type, ID: m.ID}

	current, err := getEntity(ctx, q, m.Type, m.ID)
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return nil, err
	}

	var currentVersion int64
	if current != nil {
		currentVersion = current.Version
	}

	if m.ExpectedVersion != nil && *m.ExpectedVersion != currentVersion {
		return nil, fmt.Errorf("%w: %s expected version %d, found %d",
			storage.ErrVersionMismatch, key, *m.ExpectedVersion, currentVersion)
	}

	switch m.Action {
	case models.ActionCreate, models.ActionUpdate:
		if !isObject(m.Payload) {
			return nil, fmt.Errorf("%w: %s payload must be a JSON object", storage.ErrMalformedPayload, key)
		}

		if current == nil {
			if m.Action == models.ActionUpdate {
				return nil, fmt.Errorf("%w: %s", storage.ErrEntityNotFound, key)
			}
			return insertEntity(ctx, q, key, m.Payload, now)
		}

		return updateEntity(ctx, q, current, m.Payload, false, now)

	case models.ActionDelete:
		if current == nil {
			return nil, fmt.Errorf("%w: %s", storage.ErrEntityNotFound, key)
		}
		return updateEntity(ctx, q, current, current.Data, true, now)

	default:
		return nil, fmt.Errorf("%w: unknown action %q", storage.ErrMalformedPayload, m.Action)
	}
}

func insertEntity(ctx context.Context, q queryer, key models.EntityKey, data json.RawMessage, now time.Time) (*models.Entity, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO entities (type, id, version, data, deleted, updated_at)
		VALUES (?, ?, 1, ?, 0, ?)
	`, key.Type, key.ID, string(data), toMillis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s was created concurrently", storage.ErrVersionMismatch, key)
		}
		return nil, fmt.Errorf("failed to insert entity: %w", err)
	}

	return &models.Entity{
		Type:      key.Type,
		ID:        key.ID,
		Version:   1,
		Data:      data,
		UpdatedAt: fromMillis(toMillis(now)),
	}, nil
}

func updateEntity(ctx context.Context, q queryer, current *models.Entity, data json.RawMessage, deleted bool, now time.Time) (*models.Entity, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE entities
		SET version = version + 1, data = ?, deleted = ?, updated_at = ?
		WHERE type = ? AND id = ? AND version = ?
	`, string(data), boolToInt(deleted), toMillis(now), current.Type, current.ID, current.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s/%s moved past version %d",
			storage.ErrVersionMismatch, current.Type, current.ID, current.Version)
	}

	return &models.Entity{
		Type:      current.Type,
		ID:        current.ID,
		Version:   current.Version + 1,
		Data:      data,
		Deleted:   deleted,
		UpdatedAt: fromMillis(toMillis(now)),
	}, nil
}

func isObject(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
