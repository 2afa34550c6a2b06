package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/internal/server/storage/sqlite"
)

var (
	testStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	admin     = models.Actor{Username: "admin", Role: models.RoleAdmin}
)

func device(id string) models.Actor {
	return models.Actor{Username: "tech-" + id, Role: models.RoleDevice, DeviceID: id}
}

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	events []models.Event
	mu     sync.Mutex
}

func (p *recordingPublisher) Publish(e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	engine    *Engine
	store     *sqlite.Storage
	clock     *fakeClock
	publisher *recordingPublisher
}

// setupTestEngine builds an engine over a fresh in-memory database. wrap may
// replace the store the engine sees, e.g. to inject failures.
func setupTestEngine(t *testing.T, wrap func(*sqlite.Storage) storage.Store, configure ...func(*Config)) *testEnv {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := DefaultConfig()
	for _, c := range configure {
		c(&cfg)
	}

	var store storage.Store = s
	if wrap != nil {
		store = wrap(s)
	}

	env := &testEnv{
		store:     s,
		clock:     &fakeClock{now: testStart},
		publisher: &recordingPublisher{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.engine, err = New(logger, store, cfg, WithClock(env.clock), WithPublisher(env.publisher))
	require.NoError(t, err)

	return env
}

// seed writes an entity row at version directly, bypassing the queue.
func (env *testEnv) seed(t *testing.T, id string, version int64, data string) *models.Entity {
	t.Helper()

	_, err := env.store.DB().Exec(`
		INSERT INTO entities (type, id, version, data, deleted, updated_at)
		VALUES ('work_order', ?, ?, ?, 0, ?)
	`, id, version, data, env.clock.Now().UnixMilli())
	require.NoError(t, err)

	e := env.entity(t, id)
	require.Equal(t, version, e.Version)
	return e
}

func (env *testEnv) submit(t *testing.T, deviceID string, mutations ...models.Mutation) []string {
	t.Helper()

	res, err := env.engine.Submit(context.Background(), device(deviceID), deviceID, mutations)
	require.NoError(t, err)

	ids := make([]string, len(res.Items))
	for i, item := range res.Items {
		ids[i] = item.ID
	}
	return ids
}

func (env *testEnv) dispatch(t *testing.T) *models.SyncSessionLog {
	t.Helper()

	log, err := env.engine.Dispatch(context.Background(), admin, DispatchOptions{})
	require.NoError(t, err)
	require.NotNil(t, log)
	return log
}

func (env *testEnv) item(t *testing.T, id string) *models.SyncQueueItem {
	t.Helper()
	item, err := env.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (env *testEnv) entity(t *testing.T, id string) *models.Entity {
	t.Helper()
	e, err := env.store.GetEntity(context.Background(), "work_order", id)
	require.NoError(t, err)
	return e
}

func update(entityID string, base int64, payload string) models.Mutation {
	return models.Mutation{
		EntityType:  "work_order",
		EntityID:    entityID,
		Action:      models.ActionUpdate,
		BaseVersion: &base,
		Payload:     json.RawMessage(payload),
	}
}

func create(entityID string, payload string) models.Mutation {
	return models.Mutation{
		EntityType: "work_order",
		EntityID:   entityID,
		Action:     models.ActionCreate,
		Payload:    json.RawMessage(payload),
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*Config)
		wantErr   bool
	}{
		{name: "defaults", configure: func(*Config) {}},
		{name: "no workers", configure: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "no batch", configure: func(c *Config) { c.BatchLimit = 0 }, wantErr: true},
		{name: "attempts above ceiling", configure: func(c *Config) { c.MaxAttempts = models.AttemptsCeiling + 1 }, wantErr: true},
		{name: "max below base", configure: func(c *Config) { c.BackoffMax = time.Second }, wantErr: true},
		{name: "stale shorter than tx", configure: func(c *Config) { c.StaleAfter = time.Second }, wantErr: true},
		{name: "no retention key", configure: func(c *Config) { c.RetentionKey = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.configure(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffBase = 30 * time.Second
	cfg.BackoffMax = 5 * time.Minute

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 5 * time.Minute},
		{60, 5 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0

	_, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, cfg)
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	env := setupTestEngine(t, nil)
	ctx := context.Background()

	_, err := env.engine.Dispatch(ctx, device("tablet-1"), DispatchOptions{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.engine.Cleanup(ctx, device("tablet-1"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.engine.Retention(ctx, models.Actor{Role: models.RoleAdmin})
	assert.ErrorIs(t, err, ErrForbidden, "anonymous admin")

	_, err = env.engine.Submit(ctx, models.SystemActor("scheduler"), "tablet-1", []models.Mutation{create("wo-1", `{}`)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.engine.Retention(ctx, models.SystemActor("scheduler"))
	assert.NoError(t, err)
}
