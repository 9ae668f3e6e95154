package persona

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upb/chat-gateway/internal/providers"
)

func TestRoleBuilder_SystemPrompt(t *testing.T) {
	b := NewRoleBuilder(nil, "")
	ctx := context.Background()

	tests := []struct {
		name string
		role string
		want string
	}{
		{name: "known role", role: "analyst", want: DefaultPrompts["analyst"]},
		{name: "case and space insensitive", role: " Support ", want: DefaultPrompts["support"]},
		{name: "unknown role", role: "pirate", want: DefaultPrompts[DefaultRole]},
		{name: "empty role", role: "", want: DefaultPrompts[DefaultRole]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.SystemPrompt(ctx, providers.ChatContext{Role: tt.role}))
		})
	}
}

func TestRoleBuilder_CustomPrompts(t *testing.T) {
	b := NewRoleBuilder(map[string]string{"bot": "custom"}, "bot")
	assert.Equal(t, "custom", b.SystemPrompt(context.Background(), providers.ChatContext{Role: "x"}))
}
