package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

func TestRecorder_Status(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.QueueStatus
		want     models.SessionStatus
	}{
		{name: "nothing processed", want: models.SessionSuccess},
		{name: "all completed", statuses: []models.QueueStatus{models.QueueStatusCompleted, models.QueueStatusCompleted}, want: models.SessionSuccess},
		{name: "mixed", statuses: []models.QueueStatus{models.QueueStatusCompleted, models.QueueStatusFailed}, want: models.SessionPartial},
		{name: "conflict only", statuses: []models.QueueStatus{models.QueueStatusConflict}, want: models.SessionFailed},
		{name: "requeued only", statuses: []models.QueueStatus{models.QueueStatusPending}, want: models.SessionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEngine(t, nil)
			rec := NewRecorder(env.store, env.clock, "session-1", admin, "", models.TriggerManual)

			for i, s := range tt.statuses {
				rec.Add(models.ItemOutcome{ItemID: string(rune('a' + i)), Status: s})
			}

			log, err := rec.Finish(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, log.Status)
			assert.Equal(t, len(tt.statuses), log.ItemsProcessed)
		})
	}
}

func TestRecorder_Counters(t *testing.T) {
	env := setupTestEngine(t, nil)
	rec := NewRecorder(env.store, env.clock, "session-1", admin, "tablet-1", models.TriggerScheduled)

	var wg sync.WaitGroup
	statuses := []models.QueueStatus{
		models.QueueStatusCompleted,
		models.QueueStatusCompleted,
		models.QueueStatusConflict,
		models.QueueStatusFailed,
		models.QueueStatusPending,
	}
	for _, s := range statuses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Add(models.ItemOutcome{Status: s})
		}()
	}
	wg.Wait()

	snap := rec.Snapshot()
	assert.Equal(t, 5, snap.ItemsProcessed)
	assert.Equal(t, 2, snap.ItemsSucceeded)
	assert.Equal(t, 1, snap.ItemsConflicted)
	assert.Equal(t, 2, snap.ItemsFailed)
	assert.Len(t, snap.Details.Outcomes, 5)

	env.clock.Advance(3 * time.Second)
	log, err := rec.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionPartial, log.Status)
	assert.Equal(t, 3*time.Second, log.EndTime.Sub(log.StartTime))

	saved, err := env.store.GetSessionLog(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "tablet-1", saved.DeviceID)
	assert.Equal(t, models.TriggerScheduled, saved.Details.Trigger)
	assert.Equal(t, 2, saved.ItemsSucceeded)
}

func TestRecorder_FinishTwice(t *testing.T) {
	env := setupTestEngine(t, nil)
	rec := NewRecorder(env.store, env.clock, "session-1", admin, "", models.TriggerManual)

	_, err := rec.Finish(context.Background())
	require.NoError(t, err)

	_, err = rec.Finish(context.Background())
	assert.ErrorIs(t, err, ErrSessionFinished)

	_, total, err := env.engine.SessionLogs(context.Background(), admin, storage.SessionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestRecorder_RunError(t *testing.T) {
	env := setupTestEngine(t, nil)
	rec := NewRecorder(env.store, env.clock, "session-1", admin, "", models.TriggerManual)

	rec.Fail(models.ErrorKindTransient, errors.New("database is locked"))

	log, err := rec.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, log.Status)
	require.NotNil(t, log.Details.RunError)
	assert.Equal(t, "database is locked", log.Details.RunError.Message)
}
