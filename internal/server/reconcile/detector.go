package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// Verdict is the detector's decision for one item.
type Verdict int

const (
	Clean Verdict = iota
	Conflicting
)

func (v Verdict) String() string {
	if v == Clean {
		return "clean"
	}
	return "conflicting"
}

// Detection is the detector's output. Server is the entity snapshot the
// decision was made against, nil when the entity does not exist.
type Detection struct {
	Server  *models.Entity
	Reason  models.ConflictReason
	Verdict Verdict
}

// Version is the server version the decision was made against, 0 when the
// entity does not exist.
func (d Detection) Version() int64 {
	if d.Server == nil {
		return 0
	}
	return d.Server.Version
}

// Detector compares a queued mutation with the current entity state. It is
// pure with respect to the store: it only reads.
type Detector struct {
	entities storage.EntityStorage
}

// NewDetector creates a detector reading from entities.
func NewDetector(entities storage.EntityStorage) *Detector {
	return &Detector{entities: entities}
}

// Detect classifies item against the entity store.
func (d *Detector) Detect(ctx context.Context, item *models.SyncQueueItem) (Detection, error) {
	current, err := d.entities.GetEntity(ctx, item.EntityType, item.EntityID)
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return Detection{}, fmt.Errorf("failed to load entity %s: %w", item.EntityKey(), err)
	}

	return Classify(item, current), nil
}

// Classify applies the detection rules to an already loaded entity.
func Classify(item *models.SyncQueueItem, current *models.Entity) Detection {
	if current == nil {
		if item.Action == models.ActionCreate {
			return Detection{Verdict: Clean}
		}
		return Detection{Verdict: Conflicting, Reason: models.ReasonEntityMissing}
	}

	det := Detection{Server: current}

	if current.Deleted && item.Action != models.ActionCreate {
		det.Verdict = Conflicting
		det.Reason = models.ReasonEntityDeleted
		return det
	}

	switch {
	case item.BaseVersion == nil:
		det.Verdict = Conflicting
		det.Reason = models.ReasonMissingBaseVersion
	case *item.BaseVersion == current.Version:
		det.Verdict = Clean
	case *item.BaseVersion < current.Version:
		det.Verdict = Conflicting
		det.Reason = models.ReasonStaleBaseVersion
	default:
		det.Verdict = Conflicting
		det.Reason = models.ReasonBaseVersionAhead
	}
	return det
}
