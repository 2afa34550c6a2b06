package boltdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/models"
)

func mutation(id string, action models.Action) models.Mutation {
	return models.Mutation{
		EntityType: "work_order",
		EntityID:   id,
		Action:     action,
		Payload:    json.RawMessage(`{"status":"open"}`),
	}
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	t.Run("assigns key and timestamp", func(t *testing.T) {
		e, err := store.Enqueue(ctx, mutation("wo-1", models.ActionCreate))
		require.NoError(t, err)

		assert.NotZero(t, e.Seq)
		_, err = uuid.Parse(e.Mutation.IdempotencyKey)
		assert.NoError(t, err, "generated key must be a uuid")
		require.NotNil(t, e.Mutation.ClientTimestamp)
		assert.WithinDuration(t, time.Now(), *e.Mutation.ClientTimestamp, time.Minute)
		assert.Equal(t, e.QueuedAt, *e.Mutation.ClientTimestamp)
	})

	t.Run("keeps caller values", func(t *testing.T) {
		ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		base := int64(3)
		m := mutation("wo-2", models.ActionUpdate)
		m.IdempotencyKey = "tablet-1:42"
		m.ClientTimestamp = &ts
		m.BaseVersion = &base

		e, err := store.Enqueue(ctx, m)
		require.NoError(t, err)

		assert.Equal(t, "tablet-1:42", e.Mutation.IdempotencyKey)
		assert.Equal(t, ts, *e.Mutation.ClientTimestamp)
		assert.Equal(t, int64(3), *e.Mutation.BaseVersion)
	})

	t.Run("sequence grows", func(t *testing.T) {
		a, err := store.Enqueue(ctx, mutation("wo-3", models.ActionCreate))
		require.NoError(t, err)
		b, err := store.Enqueue(ctx, mutation("wo-3", models.ActionDelete))
		require.NoError(t, err)
		assert.Greater(t, b.Seq, a.Seq)
	})
}

func TestPending_Order(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	// Enough entries to cross a byte boundary in the key encoding
	const n = 300
	for i := 0; i < n; i++ {
		_, err := store.Enqueue(ctx, mutation("wo-1", models.ActionUpdate))
		require.NoError(t, err)
	}

	all, err := store.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Seq, all[i].Seq)
	}

	page, err := store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, page, 10)
	assert.Equal(t, all[0].Seq, page[0].Seq)
	assert.Equal(t, all[9].Seq, page[9].Seq)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestPending_Empty(t *testing.T) {
	store := newTestStorage(t)

	entries, err := store.Pending(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAck(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	first, err := store.Enqueue(ctx, mutation("wo-1", models.ActionCreate))
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, mutation("wo-1", models.ActionUpdate))
	require.NoError(t, err)
	third, err := store.Enqueue(ctx, mutation("wo-2", models.ActionCreate))
	require.NoError(t, err)

	err = store.Ack(ctx, []storage.Ack{
		{Seq: first.Seq, ServerItemID: "item-1"},
		{Seq: second.Seq, ServerItemID: "item-2"},
	})
	require.NoError(t, err)

	pending, err := store.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, third.Seq, pending[0].Seq)

	id, ok, err := store.ServerItemID(ctx, first.Mutation.IdempotencyKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "item-1", id)

	_, ok, err = store.ServerItemID(ctx, third.Mutation.IdempotencyKey)
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("unknown seq rolls back", func(t *testing.T) {
		err := store.Ack(ctx, []storage.Ack{
			{Seq: third.Seq, ServerItemID: "item-3"},
			{Seq: 9999, ServerItemID: "item-x"},
		})
		assert.ErrorIs(t, err, storage.ErrEntryNotFound)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("empty", func(t *testing.T) {
		assert.NoError(t, store.Ack(ctx, nil))
	})
}

func TestMarkFailed(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	e, err := store.Enqueue(ctx, mutation("wo-1", models.ActionCreate))
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(ctx, []uint64{e.Seq}, "payload: is required"))
	require.NoError(t, store.MarkFailed(ctx, []uint64{e.Seq}, "payload: is not valid JSON"))

	pending, err := store.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "payload: is not valid JSON", pending[0].LastError)
	assert.Equal(t, e.Mutation.IdempotencyKey, pending[0].Mutation.IdempotencyKey)

	err = store.MarkFailed(ctx, []uint64{e.Seq + 1}, "x")
	assert.ErrorIs(t, err, storage.ErrEntryNotFound)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	first, err := store.Enqueue(ctx, mutation("wo-1", models.ActionUpdate))
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, mutation("wo-2", models.ActionCreate))
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, []uint64{first.Seq}, "payload: is required"))

	dropped, err := store.Discard(ctx, first.Seq)
	require.NoError(t, err)
	assert.Equal(t, first.Seq, dropped.Seq)
	assert.Equal(t, "payload: is required", dropped.LastError)

	pending, err := store.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.Seq, pending[0].Seq, "the next entry moves to the head")

	// No receipt is recorded for a discarded entry.
	_, found, err := store.ServerItemID(ctx, first.Mutation.IdempotencyKey)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Discard(ctx, first.Seq)
	assert.ErrorIs(t, err, storage.ErrEntryNotFound)
}
