package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/fieldsync/internal/models"
)

func setupTestHub(t *testing.T, buffer int) (*Hub, string) {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), buffer, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestHub_BroadcastsToAllSubscribers(t *testing.T) {
	hub, url := setupTestHub(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conns := []*websocket.Conn{dial(t, ctx, url), dial(t, ctx, url)}
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	hub.Publish(models.Event{Type: models.EventSessionFinished, At: at, Data: map[string]int{"items_processed": 3}})

	for _, conn := range conns {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var got struct {
			At   time.Time        `json:"at"`
			Data map[string]int   `json:"data"`
			Type models.EventType `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, models.EventSessionFinished, got.Type)
		assert.True(t, got.At.Equal(at))
		assert.Equal(t, 3, got.Data["items_processed"])
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, url := setupTestHub(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), 1, nil)
	assert.NotPanics(t, func() {
		hub.Publish(models.Event{Type: models.EventItemProcessed})
	})
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), 1, nil)
	s := &subscriber{send: make(chan []byte, 1)}
	hub.add(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 5 {
			hub.Publish(models.Event{Type: models.EventItemProcessed})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, s.send, 1)

	hub.Close()
	assert.Zero(t, hub.ClientCount())
	_, ok := <-s.send
	assert.True(t, ok, "buffered event is still readable")
	_, ok = <-s.send
	assert.False(t, ok)
}
