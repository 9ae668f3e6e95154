package huggingface

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
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/org/model", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"generated_text":"  a reply  "}]`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{Enabled: true, APIKey: "hf-key", BaseURL: server.URL, Model: "org/model"}, newTestTransport(), nil)

	reply, err := adapter.Chat(context.Background(), "question", providers.ChatContext{System: "system prompt"})
	require.NoError(t, err)
	assert.Equal(t, "a reply", reply)
	assert.Equal(t, "system prompt\n\nquestion", captured["inputs"])

	params := captured["parameters"].(map[string]any)
	assert.Equal(t, false, params["return_full_text"])
	assert.Equal(t, float64(defaultMaxTokens), params["max_new_tokens"])
}

func TestAdapter_ChatModelLoading(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"error":"Model is currently loading"}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{Enabled: true, APIKey: "k", BaseURL: server.URL}, newTestTransport(), nil)

	_, err := adapter.Chat(context.Background(), "q", providers.ChatContext{})
	require.Error(t, err)
	assert.True(t, providers.IsProviderError(err))
	assert.Contains(t, err.Error(), "Model is currently loading")
}

func TestAdapter_ChatQuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"quota exceeded"}`)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{Enabled: true, APIKey: "k", BaseURL: server.URL}, newTestTransport(), nil)

	_, err := adapter.Chat(context.Background(), "q", providers.ChatContext{})
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, transport.StatusCode(err))
}

func TestGeneratedText(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		want    string
		wantErr bool
	}{
		{name: "list", body: []any{map[string]any{"generated_text": "x"}}, want: "x"},
		{name: "object", body: map[string]any{"generated_text": "y"}, want: "y"},
		{name: "raw text", body: "plain", want: "plain"},
		{name: "empty list", body: []any{}, wantErr: true},
		{name: "empty object", body: map[string]any{}, wantErr: true},
		{name: "error object", body: map[string]any{"error": "boom"}, wantErr: true},
		{name: "number", body: 42.0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generatedText(tt.body)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
