package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
)

func TestClassify(t *testing.T) {
	v := func(n int64) *int64 { return &n }

	live := &models.Entity{Type: "work_order", ID: "wo-1", Version: 3}
	tomb := &models.Entity{Type: "work_order", ID: "wo-1", Version: 4, Deleted: true}

	tests := []struct {
		name       string
		action     models.Action
		base       *int64
		current    *models.Entity
		wantVerd   Verdict
		wantReason models.ConflictReason
	}{
		{name: "create on missing", action: models.ActionCreate, current: nil, wantVerd: Clean},
		{name: "update on missing", action: models.ActionUpdate, base: v(1), current: nil, wantVerd: Conflicting, wantReason: models.ReasonEntityMissing},
		{name: "delete on missing", action: models.ActionDelete, base: v(1), current: nil, wantVerd: Conflicting, wantReason: models.ReasonEntityMissing},
		{name: "matching base", action: models.ActionUpdate, base: v(3), current: live, wantVerd: Clean},
		{name: "stale base", action: models.ActionUpdate, base: v(2), current: live, wantVerd: Conflicting, wantReason: models.ReasonStaleBaseVersion},
		{name: "base ahead", action: models.ActionUpdate, base: v(7), current: live, wantVerd: Conflicting, wantReason: models.ReasonBaseVersionAhead},
		{name: "no base", action: models.ActionUpdate, current: live, wantVerd: Conflicting, wantReason: models.ReasonMissingBaseVersion},
		{name: "update on tombstone", action: models.ActionUpdate, base: v(4), current: tomb, wantVerd: Conflicting, wantReason: models.ReasonEntityDeleted},
		{name: "delete on tombstone", action: models.ActionDelete, base: v(4), current: tomb, wantVerd: Conflicting, wantReason: models.ReasonEntityDeleted},
		{name: "recreate over tombstone", action: models.ActionCreate, base: v(4), current: tomb, wantVerd: Clean},
		{name: "create over live without base", action: models.ActionCreate, current: live, wantVerd: Conflicting, wantReason: models.ReasonMissingBaseVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &models.SyncQueueItem{EntityType: "work_order", EntityID: "wo-1", Action: tt.action, BaseVersion: tt.base}

			det := Classify(item, tt.current)
			assert.Equal(t, tt.wantVerd, det.Verdict)
			assert.Equal(t, tt.wantReason, det.Reason)
			if tt.current != nil {
				assert.Equal(t, tt.current.Version, det.Version())
			} else {
				assert.Zero(t, det.Version())
			}
		})
	}
}

func TestDetector_Detect(t *testing.T) {
	env := setupTestEngine(t, nil)
	env.seed(t, "wo-1", 2, `{"status":"open"}`)
	base := int64(2)

	det, err := NewDetector(env.store).Detect(context.Background(), &models.SyncQueueItem{
		EntityType:  "work_order",
		EntityID:    "wo-1",
		Action:      models.ActionUpdate,
		BaseVersion: &base,
	})
	require.NoError(t, err)
	assert.Equal(t, Clean, det.Verdict)
	require.NotNil(t, det.Server)
	assert.JSONEq(t, `{"status":"open"}`, string(det.Server.Data))

	det, err = NewDetector(env.store).Detect(context.Background(), &models.SyncQueueItem{
		EntityType: "work_order",
		EntityID:   "wo-404",
		Action:     models.ActionUpdate,
	})
	require.NoError(t, err)
	assert.Equal(t, Conflicting, det.Verdict)
	assert.Equal(t, models.ReasonEntityMissing, det.Reason)
	assert.Equal(t, "conflicting", det.Verdict.String())
}
