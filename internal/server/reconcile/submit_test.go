package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/fingerprint"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/internal/validation"
)

func TestSubmit_EnqueuesPending(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()

	edited := testStart.Add(-2 * time.Hour)
	m := update("wo-1", 4, `{ "status": "done" }`)
	m.ClientTimestamp = &edited

	res, err := env.engine.Submit(ctx, device("tablet-1"), "tablet-1", []models.Mutation{m, create("wo-2", `{}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Zero(t, res.Duplicates)
	require.Len(t, res.Items, 2)

	item := env.item(t, res.Items[0].ID)
	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.Equal(t, "tablet-1", item.DeviceID)
	assert.Equal(t, "tech-tablet-1", item.Username)
	require.NotNil(t, item.BaseVersion)
	assert.Equal(t, int64(4), *item.BaseVersion)
	assert.True(t, item.ClientTimestamp.Equal(edited))
	assert.True(t, item.NextAttemptAt.Equal(testStart))
	assert.True(t, fingerprint.Equal(item.Payload, item.PayloadHash))
	assert.Zero(t, item.Attempts)
	assert.False(t, item.ForceSync)

	second := env.item(t, res.Items[1].ID)
	assert.Nil(t, second.BaseVersion)
	assert.True(t, second.ClientTimestamp.Equal(testStart), "defaults to submission time")

	assert.Contains(t, env.publisher.types(), models.EventItemsSubmitted)
}

func TestSubmit_IdempotentResubmission(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()

	m := create("wo-1", `{"status":"open"}`)
	m.IdempotencyKey = "k-1"

	first, err := env.engine.Submit(ctx, device("tablet-1"), "tablet-1", []models.Mutation{m})
	require.NoError(t, err)

	// Whitespace differences hash the same.
	m.Payload = json.RawMessage(`{ "status" : "open" }`)
	again, err := env.engine.Submit(ctx, device("tablet-1"), "tablet-1", []models.Mutation{m, create("wo-2", `{}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Duplicates)
	assert.Equal(t, 1, again.Accepted)
	assert.True(t, again.Items[0].Duplicate)
	assert.Equal(t, first.Items[0].ID, again.Items[0].ID)
	assert.Equal(t, "k-1", again.Items[0].IdempotencyKey)

	status, err := env.engine.QueueStatus(ctx, admin, storage.QueueFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
}

func TestSubmit_KeyReusedWithDifferentPayload(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()

	m := create("wo-1", `{"status":"open"}`)
	m.IdempotencyKey = "k-1"
	_, err := env.engine.Submit(ctx, device("tablet-1"), "tablet-1", []models.Mutation{m})
	require.NoError(t, err)

	m.Payload = json.RawMessage(`{"status":"closed"}`)
	_, err = env.engine.Submit(ctx, device("tablet-1"), "tablet-1", []models.Mutation{create("wo-9", `{}`), m})

	var berr *validation.BatchError
	require.ErrorAs(t, err, &berr)
	require.Len(t, berr.Errors, 1)
	assert.Equal(t, 1, berr.Errors[0].Index)
	assert.Equal(t, "idempotency_key", berr.Errors[0].Field)

	status, err := env.engine.QueueStatus(ctx, admin, storage.QueueFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, status.Total, "rejected batch stores nothing")
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		actor     models.Actor
		deviceID  string
		mutations []models.Mutation
		wantErr   error
		wantBatch bool
	}{
		{
			name:      "device submits for another device",
			actor:     device("tablet-1"),
			deviceID:  "tablet-2",
			mutations: []models.Mutation{create("wo-1", `{}`)},
			wantErr:   ErrForbidden,
		},
		{
			name:      "system actor",
			actor:     models.SystemActor("scheduler"),
			deviceID:  "tablet-1",
			mutations: []models.Mutation{create("wo-1", `{}`)},
			wantErr:   ErrForbidden,
		},
		{
			name:      "missing entity id",
			actor:     device("tablet-1"),
			deviceID:  "tablet-1",
			mutations: []models.Mutation{create("wo-1", `{}`), create("  ", `{}`)},
			wantBatch: true,
		},
		{
			name:      "invalid json",
			actor:     device("tablet-1"),
			deviceID:  "tablet-1",
			mutations: []models.Mutation{create("wo-1", `{"status":`)},
			wantBatch: true,
		},
		{
			name:      "empty batch",
			actor:     device("tablet-1"),
			deviceID:  "tablet-1",
			wantBatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEngine(t, nil)
			ctx := context.Background()

			_, err := env.engine.Submit(ctx, tt.actor, tt.deviceID, tt.mutations)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantBatch {
				var berr *validation.BatchError
				assert.ErrorAs(t, err, &berr)
			}

			status, err := env.engine.QueueStatus(ctx, admin, storage.QueueFilter{})
			require.NoError(t, err)
			assert.Zero(t, status.Total)
		})
	}
}

func TestSubmit_AdminMaySubmitForAnyDevice(t *testing.T) {
	env := setupTestEngine(t, nil)

	res, err := env.engine.Submit(context.Background(), admin, "tablet-7", []models.Mutation{create("wo-1", `{}`)})
	require.NoError(t, err)
	assert.Equal(t, "tablet-7", env.item(t, res.Items[0].ID).DeviceID)
}
