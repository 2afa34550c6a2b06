package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

func TestNextDue(t *testing.T) {
	tests := []struct {
		name string
		log  *models.SyncSessionLog
		want time.Duration
	}{
		{name: "no log", log: nil, want: time.Minute},
		{name: "idle pass", log: &models.SyncSessionLog{}, want: time.Minute},
		{name: "busy pass", log: &models.SyncSessionLog{ItemsProcessed: 3}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextDue(time.Minute, tt.log))
		})
	}
}

func TestScheduler_Run(t *testing.T) {
	env := setupTestEngine(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ids := env.submit(t, "tablet-1", create("wo-1", `{}`))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler(logger, env.engine, time.Hour).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		item, err := env.store.GetItem(context.Background(), ids[0])
		return err == nil && item.Status == models.QueueStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	logs, _, err := env.engine.SessionLogs(context.Background(), admin, storage.SessionFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "dispatch-scheduler", logs[len(logs)-1].Username)
	assert.Equal(t, models.TriggerScheduled, logs[len(logs)-1].Details.Trigger)
}

func TestCleanupScheduler_Tick(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewCleanupScheduler(logger, env.engine, time.Minute)

	assert.True(t, s.tick(ctx), "never ran")
	assert.False(t, s.tick(ctx), "next run is a day away")

	audits, err := env.engine.CleanupAudits(ctx, admin, 0)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "cleanup-scheduler", audits[0].Actor)

	env.clock.Advance(models.Day)
	assert.True(t, s.tick(ctx))

	_, err = env.engine.UpdateRetention(ctx, admin, models.DefaultRetentionPolicy(), false)
	require.NoError(t, err)
	env.clock.Advance(10 * models.Day)
	assert.False(t, s.tick(ctx), "auto cleanup disabled")
}
