// Package persona synthesizes a system prompt when the caller supplies none.
package persona

import (
	"context"
	"strings"

	"github.com/upb/chat-gateway/internal/providers"
)

// Builder produces a system prompt for a request
type Builder interface {
	SystemPrompt(ctx context.Context, cc providers.ChatContext) string
}

const DefaultRole = "assistant"

// DefaultPrompts maps roles to system prompts
var DefaultPrompts = map[string]string{
	"assistant": "You are a concise, helpful sports betting assistant. Answer in the user's language. " +
		"Never guarantee outcomes and remind users to bet responsibly when giving picks.",
	"analyst": "You are a sports data analyst. Ground every claim in the provided passages when present, " +
		"state uncertainty plainly and prefer numbers over adjectives.",
	"support": "You are a customer support agent for a betting tips service. Be brief and polite, " +
		"and escalate payment problems to a human.",
}

// RoleBuilder picks a prompt by ChatContext.Role, falling back to the
// default role for unknown or empty roles.
type RoleBuilder struct {
	prompts     map[string]string
	defaultRole string
}

// NewRoleBuilder creates a builder. Nil prompts uses DefaultPrompts.
func NewRoleBuilder(prompts map[string]string, defaultRole string) *RoleBuilder {
	if prompts == nil {
		prompts = DefaultPrompts
	}
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	return &RoleBuilder{prompts: prompts, defaultRole: defaultRole}
}

// SystemPrompt returns the prompt for the request's role
func (b *RoleBuilder) SystemPrompt(_ context.Context, cc providers.ChatContext) string {
	if p, ok := b.prompts[strings.ToLower(strings.TrimSpace(cc.Role))]; ok {
		return p
	}
	return b.prompts[b.defaultRole]
}
