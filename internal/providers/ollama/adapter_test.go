package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/transport"
)

func newTestTransport() *transport.Client {
	return transport.NewClient(transport.Options{
		Retries:          0,
		Timeout:          2 * time.Second,
		RateLimitBackoff: time.Millisecond,
		RetryBackoff:     time.Millisecond,
	}, zap.NewNop())
}

func TestAdapter_Chat(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3.1","message":{"role":"assistant","content":"local answer"},"done":true}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{Enabled: true, BaseURL: server.URL}, newTestTransport(), nil)

	reply, err := adapter.Chat(context.Background(), "hi", providers.ChatContext{System: "sys", ExpectStructured: true})
	require.NoError(t, err)
	assert.Equal(t, "local answer", reply)

	assert.Equal(t, defaultModel, captured.Model)
	assert.False(t, captured.Stream)
	assert.Equal(t, "json", captured.Format)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
}

func TestAdapter_ChatPartialReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"half an ans"},"done":false,"done_reason":"length"}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{Enabled: true, BaseURL: server.URL}, newTestTransport(), nil)

	reply, err := adapter.Chat(context.Background(), "hi", providers.ChatContext{})
	require.NoError(t, err)
	assert.Equal(t, "half an ans", reply)
}

func TestAdapter_ChatEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{Enabled: true, BaseURL: server.URL}, newTestTransport(), nil)

	_, err := adapter.Chat(context.Background(), "hi", providers.ChatContext{})
	assert.True(t, providers.IsProviderError(err))
}

func TestAdapter_IsHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[]}`)
	}))

	adapter := NewAdapter(providers.Config{Enabled: true, BaseURL: server.URL}, newTestTransport(), nil)
	assert.True(t, adapter.IsHealthy(context.Background()))

	server.Close()
	assert.False(t, adapter.IsHealthy(context.Background()))
}
