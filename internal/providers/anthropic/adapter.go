package anthropic

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/transport"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
	structuredSuffix = "\n\nReply with a single JSON object and nothing else."
)

// Adapter implements providers.Provider for the Anthropic Messages API
type Adapter struct {
	config    providers.Config
	transport *transport.Client
	logger    *zap.Logger
}

// NewAdapter creates a new Anthropic adapter
func NewAdapter(config providers.Config, tc *transport.Client, logger *zap.Logger) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config:    config,
		transport: tc,
		logger:    logger.With(zap.String("provider", "anthropic")),
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "anthropic"
}

// Enabled reports whether the provider is switched on
func (a *Adapter) Enabled() bool {
	return a.config.Enabled
}

// IsHealthy reports whether the adapter is enabled and has credentials
func (a *Adapter) IsHealthy(_ context.Context) bool {
	return a.config.Enabled && a.config.APIKey != ""
}

// Chat sends a single-turn Messages API request
func (a *Adapter) Chat(ctx context.Context, message string, cc providers.ChatContext) (string, error) {
	system := cc.System
	if cc.ExpectStructured {
		system += structuredSuffix
	}

	body := messagesRequest{
		Model:     a.config.Model,
		MaxTokens: a.config.MaxTokens,
		System:    strings.TrimSpace(system),
		Messages:  []inputMessage{{Role: "user", Content: message}},
	}
	if a.config.Temperature > 0 {
		t := a.config.Temperature
		body.Temperature = &t
	}

	headers := map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": apiVersion,
		"Content-Type":      "application/json",
	}
	for k, v := range a.config.Headers {
		headers[k] = v
	}

	var resp messagesResponse
	err := a.transport.FetchJSON(ctx, transport.Request{
		Method:  "POST",
		URL:     strings.TrimRight(a.config.BaseURL, "/") + "/v1/messages",
		Headers: headers,
		Body:    body,
	}, "anthropic.chat", &resp)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", providers.NewProviderError(a.Name(), "empty response", nil)
	}

	a.logger.Debug("messages request succeeded",
		zap.String("model", a.config.Model),
		zap.String("stop_reason", resp.StopReason))
	return b.String(), nil
}

type messagesRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []inputMessage `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
