package storage

import (
	"context"
	"time"

	"github.com/iudanet/fieldsync/internal/models"
)

// SessionLogStorage defines interface for sync session log persistence
type SessionLogStorage interface {
	// SaveSessionLog inserts a finished session log
	SaveSessionLog(ctx context.Context, log *models.SyncSessionLog) error

	// GetSessionLog retrieves a session log by ID
	// Returns ErrSessionNotFound if log doesn't exist
	GetSessionLog(ctx context.Context, id string) (*models.SyncSessionLog, error)

	// ListSessionLogs returns one page of logs, newest first, and the total count
	ListSessionLogs(ctx context.Context, filter SessionFilter) ([]*models.SyncSessionLog, int, error)

	// DeleteSessionLogs removes logs that ended before `before`
	DeleteSessionLogs(ctx context.Context, before time.Time) (int64, error)
}
