package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/gateway"
	"github.com/upb/chat-gateway/internal/providers"
)

// MockPinger is a mock implementation of Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w).(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		pingErr    error
		nilStore   bool
		wantStatus int
		wantCheck  string
	}{
		{name: "healthy store", wantStatus: http.StatusOK, wantCheck: "healthy"},
		{name: "unreachable store", pingErr: errors.New("dial tcp: refused"), wantStatus: http.StatusServiceUnavailable, wantCheck: "unhealthy"},
		{name: "no store configured", nilStore: true, wantStatus: http.StatusOK, wantCheck: "not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var handler *HealthHandler
			if tt.nilStore {
				handler = NewHealthHandler(nil, logger)
			} else {
				pinger := new(MockPinger)
				pinger.On("Ping", mock.Anything).Return(tt.pingErr)
				handler = NewHealthHandler(pinger, logger)
			}

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()

			handler.HandleReadiness(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decodeData(t, w).(map[string]interface{})
			checks := data["checks"].(map[string]interface{})
			assert.Equal(t, tt.wantCheck, checks["kv"])
		})
	}
}

type stubLister struct {
	statuses []gateway.ProviderStatus
}

func (s stubLister) Providers(context.Context) []gateway.ProviderStatus {
	return s.statuses
}

func TestHandleListProviders(t *testing.T) {
	until := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	handler := NewProviderHandler(stubLister{statuses: []gateway.ProviderStatus{
		{Name: "openai", Variant: providers.Primary, Enabled: true, Healthy: true, Blocked: true, UnblockAt: &until},
		{Name: "ollama", Variant: providers.Local, Enabled: true, Healthy: false},
	}}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	w := httptest.NewRecorder()

	handler.HandleList(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []gateway.ProviderStatus `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, "openai", response.Data[0].Name)
	assert.True(t, response.Data[0].Blocked)
	require.NotNil(t, response.Data[0].UnblockAt)
	assert.True(t, until.Equal(*response.Data[0].UnblockAt))
	assert.Equal(t, providers.Local, response.Data[1].Variant)
	assert.Nil(t, response.Data[1].UnblockAt)
}
