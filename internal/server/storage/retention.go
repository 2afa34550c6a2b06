package storage

import (
	"context"

	"github.com/iudanet/fieldsync/internal/models"
)

// RetentionStorage defines interface for retention settings and cleanup audits
type RetentionStorage interface {
	// GetRetention retrieves the setting stored under key
	// Returns ErrRetentionNotFound if nothing is stored
	GetRetention(ctx context.Context, key string) (*models.RetentionSetting, error)

	// SaveRetention creates or replaces the setting under setting.Key
	SaveRetention(ctx context.Context, setting *models.RetentionSetting) error

	// SaveCleanupAudit inserts an audit row
	SaveCleanupAudit(ctx context.Context, audit *models.CleanupAudit) error

	// ListCleanupAudits returns the most recent audits first
	ListCleanupAudits(ctx context.Context, limit int) ([]*models.CleanupAudit, error)
}
