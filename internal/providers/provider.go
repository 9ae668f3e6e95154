package providers

import (
	"context"
	"errors"
	"fmt"
)

// Variant names a slot in the provider priority order
type Variant string

const (
	Primary    Variant = "primary"
	SecondaryA Variant = "secondary-a"
	SecondaryB Variant = "secondary-b"
	SecondaryC Variant = "secondary-c"
	Local      Variant = "local"
)

// Variants lists every slot in priority order
var Variants = []Variant{Primary, SecondaryA, SecondaryB, SecondaryC, Local}

// Fallbacks lists the slots tried after the primary, before the local fallback
var Fallbacks = []Variant{SecondaryA, SecondaryB, SecondaryC}

// Valid reports whether v is a known variant
func (v Variant) Valid() bool {
	for _, known := range Variants {
		if v == known {
			return true
		}
	}
	return false
}

// Provider is a chat backend
type Provider interface {
	// Name returns the provider name (e.g., "openai", "anthropic")
	Name() string

	// Chat sends one user message and returns the reply text
	Chat(ctx context.Context, message string, cc ChatContext) (string, error)

	// IsHealthy reports whether the provider can currently take requests
	IsHealthy(ctx context.Context) bool

	// Enabled reports whether the provider is switched on in configuration
	Enabled() bool
}

// ChatContext carries the per-request options passed to a provider
type ChatContext struct {
	// System is the system prompt; synthesized by the gateway when empty
	System string `json:"system,omitempty"`

	// ExpectStructured asks for a single JSON object reply
	ExpectStructured bool `json:"expectStructured,omitempty"`

	// FewShotApplied is set once a worked example has been added
	FewShotApplied bool `json:"fewShotApplied,omitempty"`

	// UserKey identifies the caller; also the retrieval namespace
	UserKey string `json:"id,omitempty"`

	// Role selects the persona when System is empty
	Role string `json:"role,omitempty"`
}

// Config holds common configuration for provider adapters
type Config struct {
	Enabled     bool
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Headers     map[string]string
}

// ProviderError represents a provider failure that did not come from the
// HTTP layer, such as an empty or malformed reply
type ProviderError struct {
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// IsProviderError checks if an error is a ProviderError
func IsProviderError(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr)
}
