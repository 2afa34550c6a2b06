package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/crdt"
	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
)

// conflicted parks one stale update against a v3 entity and returns the
// item and conflict ids.
func conflicted(t *testing.T, env *testEnv, entityID, payload string) (string, string) {
	t.Helper()

	env.seed(t, entityID, 3, `{"status":"open","notes":"server"}`)
	env.clock.Advance(time.Minute)
	ids := env.submit(t, "tablet-1", update(entityID, 2, payload))
	env.dispatch(t)
	require.Equal(t, models.QueueStatusConflict, env.item(t, ids[0]).Status)

	return ids[0], mustConflictFor(t, env, ids[0])
}

func TestResolve_ServerWins(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	itemID, conflictID := conflicted(t, env, "wo-1", `{"status":"done"}`)

	res, err := env.engine.Resolve(ctx, admin, conflictID, models.StrategyServerWins)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCounts{Resolved: 1, Completed: 1}, res.Counts)

	assert.True(t, res.Conflict.Resolved)
	assert.Equal(t, models.StrategyServerWins, res.Conflict.ResolutionType)
	assert.Equal(t, "admin", res.Conflict.ResolvedBy)
	require.NotNil(t, res.Conflict.ResolvedAt)

	assert.Equal(t, itemID, res.Item.ID)
	assert.Equal(t, models.QueueStatusCompleted, res.Item.Status)
	require.True(t, res.Item.Result.IsOk())
	assert.Equal(t, models.OutcomeDiscarded, res.Item.Result.Ok.Outcome)
	assert.Equal(t, int64(3), res.Item.Result.Ok.Version)

	entity := env.entity(t, "wo-1")
	assert.Equal(t, int64(3), entity.Version)
	assert.JSONEq(t, `{"status":"open","notes":"server"}`, string(entity.Data))

	assert.Equal(t, 0, env.dispatch(t).ItemsProcessed)
}

func TestResolve_ClientWins(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	itemID, conflictID := conflicted(t, env, "wo-1", `{"status":"done"}`)

	res, err := env.engine.Resolve(ctx, admin, conflictID, models.StrategyClientWins)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCounts{Resolved: 1, Requeued: 1}, res.Counts)
	assert.Equal(t, models.QueueStatusPending, res.Item.Status)
	assert.True(t, res.Item.ForceSync)

	log := env.dispatch(t)
	assert.Equal(t, 1, log.ItemsSucceeded)

	item := env.item(t, itemID)
	assert.Equal(t, models.QueueStatusCompleted, item.Status)
	entity := env.entity(t, "wo-1")
	assert.Equal(t, int64(4), entity.Version)
	assert.JSONEq(t, `{"status":"done"}`, string(entity.Data))
}

func TestResolve_Merge(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	_, conflictID := conflicted(t, env, "wo-1", `{"status":"done","parts":2}`)

	res, err := env.engine.Resolve(ctx, admin, conflictID, models.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCounts{Resolved: 1, Requeued: 1}, res.Counts)

	// The client edit is newer, so its status wins; server-only fields stay.
	want := `{"status":"done","parts":2,"notes":"server"}`
	assert.JSONEq(t, want, string(res.Item.Payload))
	assert.True(t, res.Item.ForceSync)

	env.dispatch(t)
	entity := env.entity(t, "wo-1")
	assert.Equal(t, int64(4), entity.Version)
	assert.JSONEq(t, want, string(entity.Data))
}

func TestResolve_IsIdempotent(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	_, conflictID := conflicted(t, env, "wo-1", `{"status":"done"}`)

	first, err := env.engine.Resolve(ctx, admin, conflictID, models.StrategyServerWins)
	require.NoError(t, err)

	for _, strategy := range []models.ResolutionStrategy{models.StrategyServerWins, models.StrategyClientWins} {
		again, err := env.engine.Resolve(ctx, admin, conflictID, strategy)
		require.NoError(t, err)
		assert.Equal(t, models.ResolveCounts{}, again.Counts)
		assert.Equal(t, first.Item.Status, again.Item.Status)
		assert.Equal(t, models.StrategyServerWins, again.Conflict.ResolutionType)
	}
}

func TestResolve_Errors(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	itemID, conflictID := conflicted(t, env, "wo-1", `{"status":"done"}`)

	_, err := env.engine.Resolve(ctx, admin, conflictID, "coin_flip")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = env.engine.Resolve(ctx, device("tablet-1"), conflictID, models.StrategyServerWins)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.engine.Resolve(ctx, admin, "missing", models.StrategyServerWins)
	assert.ErrorIs(t, err, storage.ErrConflictNotFound)

	// Nothing changed.
	assert.Equal(t, models.QueueStatusConflict, env.item(t, itemID).Status)
	c, err := env.store.GetConflict(ctx, conflictID)
	require.NoError(t, err)
	assert.False(t, c.Resolved)
}

func TestResolve_MergeUnsupportedForDelete(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	env.seed(t, "wo-1", 3, `{"status":"open"}`)

	base := int64(1)
	ids := env.submit(t, "tablet-1", models.Mutation{
		EntityType:  "work_order",
		EntityID:    "wo-1",
		Action:      models.ActionDelete,
		BaseVersion: &base,
		Payload:     json.RawMessage(`{}`),
	})
	env.dispatch(t)

	_, err := env.engine.Resolve(ctx, admin, mustConflictFor(t, env, ids[0]), models.StrategyMerge)
	assert.ErrorIs(t, err, ErrMergeUnsupported)
	assert.Equal(t, models.QueueStatusConflict, env.item(t, ids[0]).Status)
}

func TestResolveAll(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()

	env.seed(t, "wo-1", 2, `{"status":"open"}`)
	env.seed(t, "wo-2", 2, `{"status":"open"}`)
	env.clock.Advance(time.Minute)

	ids := env.submit(t, "tablet-1",
		update("wo-1", 1, `{"status":"done"}`),
		update("wo-2", 1, `{"status":"done"}`),
		update("wo-missing", 1, `{"status":"done"}`),
	)
	env.dispatch(t)
	for _, id := range ids {
		require.Equal(t, models.QueueStatusConflict, env.item(t, id).Status)
	}

	counts, err := env.engine.ResolveAll(ctx, admin, models.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCounts{Resolved: 2, Requeued: 2, Skipped: 1}, counts)

	assert.Equal(t, models.QueueStatusPending, env.item(t, ids[0]).Status)
	assert.Equal(t, models.QueueStatusPending, env.item(t, ids[1]).Status)
	assert.Equal(t, models.QueueStatusConflict, env.item(t, ids[2]).Status, "no server state to merge")

	counts, err = env.engine.ResolveAll(ctx, admin, models.StrategyServerWins)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCounts{Resolved: 1, Completed: 1}, counts)

	counts, err = env.engine.ResolveAll(ctx, admin, models.StrategyServerWins)
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCounts{}, counts)
}

func TestConflictDetail(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()
	itemID, conflictID := conflicted(t, env, "wo-1", `{"status":"done","parts":2}`)

	view, err := env.engine.ConflictDetail(ctx, admin, conflictID)
	require.NoError(t, err)
	assert.Equal(t, itemID, view.Item.ID)
	require.NotNil(t, view.Current)
	assert.Equal(t, int64(3), view.Current.Version)

	require.Len(t, view.Diff, 3)
	assert.Equal(t, FieldDiff{Field: "notes", Kind: ChangeServerOnly, Server: json.RawMessage(`"server"`)}, view.Diff[0])
	assert.Equal(t, FieldDiff{Field: "parts", Kind: ChangeClientOnly, Client: json.RawMessage(`2`)}, view.Diff[1])
	assert.Equal(t, "status", view.Diff[2].Field)
	assert.Equal(t, ChangeChanged, view.Diff[2].Kind)
	assert.Equal(t, SideClient, view.Diff[2].MergeKeeps, "the client edit is a minute newer")
}

func TestDiffFields(t *testing.T) {
	tests := []struct {
		name   string
		server string
		client string
		skew   time.Duration // client timestamp relative to the server's
		want   []string
	}{
		{name: "identical", server: `{"a":1}`, client: `{ "a" : 1 }`, want: []string{}},
		{name: "null server", server: `null`, client: `{"a":1}`, want: []string{"a:client_only"}},
		{name: "non object client", server: `{"a":1}`, client: `[1]`, want: []string{"a:server_only"}},
		{name: "sorted", server: `{"z":1,"b":1}`, client: `{"b":2,"a":1}`, skew: time.Second, want: []string{"a:client_only", "b:changed:client", "z:server_only"}},
		{name: "older client", server: `{"b":1}`, client: `{"b":2}`, skew: -time.Second, want: []string{"b:changed:server"}},
		{name: "tie broken by node id", server: `{"b":1}`, client: `{"b":2}`, want: []string{"b:changed:client"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := crdt.Side{Timestamp: testStart, NodeID: serverNodeID, Doc: json.RawMessage(tt.server)}
			client := crdt.Side{Timestamp: testStart.Add(tt.skew), NodeID: "tablet-1", Doc: json.RawMessage(tt.client)}

			got := []string{}
			for _, d := range DiffFields(server, client) {
				entry := d.Field + ":" + string(d.Kind)
				if d.MergeKeeps != "" {
					entry += ":" + string(d.MergeKeeps)
				}
				got = append(got, entry)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []models.ResolutionStrategy{
		models.StrategyClientWins,
		models.StrategyMerge,
		models.StrategyServerWins,
	}, r.Names())

	_, err := r.Get("latest_wins")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	_, err = r.Get("")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "strategy is required")

	r.Register(latestWins{})
	s, err := r.Get("latest_wins")
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionStrategy("latest_wins"), s.Name())
}

type latestWins struct{}

func (latestWins) Name() models.ResolutionStrategy { return "latest_wins" }

func (latestWins) Plan(c *models.SyncConflict, _ *models.SyncQueueItem) (models.Resolution, error) {
	return models.Resolution{Strategy: "latest_wins", Complete: c.ServerTimestamp.After(c.ClientTimestamp)}, nil
}

func TestMerge_Plan(t *testing.T) {
	at := testStart
	conflict := &models.SyncConflict{
		DeviceID:        "tablet-1",
		ServerData:      json.RawMessage(`{"status":"open","notes":"server"}`),
		ClientData:      json.RawMessage(`{"status":"done"}`),
		ServerTimestamp: at,
		ClientTimestamp: at,
	}
	item := &models.SyncQueueItem{Action: models.ActionUpdate}

	// Equal timestamps go to the greater node id, here the device.
	res, err := Merge{}.Plan(conflict, item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"done","notes":"server"}`, string(res.Payload))

	conflict.ServerTimestamp = at.Add(time.Second)
	res, err = Merge{}.Plan(conflict, item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"open","notes":"server"}`, string(res.Payload))

	conflict.ClientData = json.RawMessage(`"done"`)
	_, err = Merge{}.Plan(conflict, item)
	assert.ErrorIs(t, err, ErrMergeUnsupported)
}
