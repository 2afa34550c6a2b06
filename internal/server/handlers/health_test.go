package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name        string
		pingErr     error
		wantStatus  int
		wantHealth  string
		wantStorage string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantHealth: "ok", wantStorage: "ok"},
		{name: "database down", pingErr: errors.New("database is closed"), wantStatus: http.StatusServiceUnavailable, wantHealth: "degraded", wantStorage: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(setupTestLogger(), pingerFunc(func(context.Context) error { return tt.pingErr }), "v1.2.3")

			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			w := httptest.NewRecorder()
			handler.Health(w, req)

			resp := w.Result()
			defer func() {
				assert.NoError(t, resp.Body.Close())
			}()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var healthResp HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&healthResp))
			assert.Equal(t, tt.wantHealth, healthResp.Status)
			assert.Equal(t, tt.wantStorage, healthResp.Storage)
			assert.Equal(t, "v1.2.3", healthResp.Version)
		})
	}
}
