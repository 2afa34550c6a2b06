package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/events"
	"github.com/iudanet/fieldsync/internal/server/jwt"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage/sqlite"
	"github.com/iudanet/fieldsync/pkg/api"
)

type testServer struct {
	*httptest.Server
	tokens *jwt.Service
	hub    *events.Hub
}

func setupTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := events.NewHub(logger, events.DefaultBuffer, nil)
	engine, err := reconcile.New(logger, store, reconcile.DefaultConfig(), reconcile.WithPublisher(hub))
	require.NoError(t, err)

	tokens := jwt.NewService("test-secret", time.Hour)
	router, stop := NewRouter(logger, cfg, Deps{
		Engine:  engine,
		Tokens:  tokens,
		Events:  hub,
		Store:   store,
		Version: "test",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		stop()
	})

	return &testServer{Server: srv, tokens: tokens, hub: hub}
}

func (s *testServer) token(t *testing.T, actor models.Actor) string {
	t.Helper()
	tok, _, err := s.tokens.GenerateAccessToken("u-"+actor.Username, actor)
	require.NoError(t, err)
	return tok
}

func (s *testServer) call(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

var (
	adminActor  = models.Actor{Username: "admin", Role: models.RoleAdmin}
	deviceActor = models.Actor{Username: "tech-1", Role: models.RoleDevice, DeviceID: "tablet-1"}
)

func submitBody() api.SubmitRequest {
	return api.SubmitRequest{Mutations: []api.Mutation{{
		EntityType: "work_order",
		EntityID:   "wo-1",
		Action:     "create",
		Payload:    json.RawMessage(`{"status":"open"}`),
	}}}
}

func TestRouter(t *testing.T) {
	srv := setupTestServer(t, DefaultConfig())
	adminToken := srv.token(t, adminActor)
	deviceToken := srv.token(t, deviceActor)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{name: "health is public", method: http.MethodGet, path: "/api/v1/health", wantStatus: http.StatusOK},
		{name: "submit needs a token", method: http.MethodPost, path: "/api/v1/sync/submit", body: submitBody(), wantStatus: http.StatusUnauthorized},
		{name: "device submits", method: http.MethodPost, path: "/api/v1/sync/submit", token: deviceToken, body: submitBody(), wantStatus: http.StatusAccepted},
		{name: "admin needs a token", method: http.MethodGet, path: "/api/v1/admin/queue", wantStatus: http.StatusUnauthorized},
		{name: "device reads queue", method: http.MethodGet, path: "/api/v1/admin/queue", token: deviceToken, wantStatus: http.StatusForbidden},
		{name: "admin reads queue", method: http.MethodGet, path: "/api/v1/admin/queue", token: adminToken, wantStatus: http.StatusOK},
		{name: "device opens event feed", method: http.MethodGet, path: "/api/v1/admin/events", token: deviceToken, wantStatus: http.StatusForbidden},
		{name: "wrong method", method: http.MethodDelete, path: "/api/v1/admin/queue", token: adminToken, wantStatus: http.StatusMethodNotAllowed},
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/admin/unknown", token: adminToken, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.call(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRouter_SubmitRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SubmitRate = 1
	srv := setupTestServer(t, cfg)
	deviceToken := srv.token(t, deviceActor)

	resp := srv.call(t, http.MethodPost, "/api/v1/sync/submit", deviceToken, submitBody())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = srv.call(t, http.MethodPost, "/api/v1/sync/submit", deviceToken, submitBody())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Other devices have their own budget.
	other := srv.token(t, models.Actor{Username: "tech-2", Role: models.RoleDevice, DeviceID: "tablet-2"})
	body := submitBody()
	resp = srv.call(t, http.MethodPost, "/api/v1/sync/submit", other, body)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestRouter_AdminRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdminRate = 1
	srv := setupTestServer(t, cfg)
	adminToken := srv.token(t, adminActor)

	resp := srv.call(t, http.MethodPost, "/api/v1/admin/dispatch", adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.call(t, http.MethodPost, "/api/v1/admin/dispatch", adminToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Cleanup keeps a budget of its own.
	resp = srv.call(t, http.MethodPost, "/api/v1/admin/cleanup", adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = srv.call(t, http.MethodPost, "/api/v1/admin/cleanup", adminToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Reads are not limited.
	for range 3 {
		resp = srv.call(t, http.MethodGet, "/api/v1/admin/queue", adminToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRouter_EventFeed(t *testing.T) {
	srv := setupTestServer(t, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + srv.URL[len("http"):] + "/api/v1/admin/events?access_token=" + srv.token(t, adminActor)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	resp := srv.call(t, http.MethodPost, "/api/v1/sync/submit", srv.token(t, deviceActor), submitBody())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event models.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, models.EventItemsSubmitted, event.Type)
}

func TestServer_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"

	srv := New(logger, cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
