package huggingface

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/transport"
)

const (
	defaultBaseURL   = "https://api-inference.huggingface.co"
	defaultModel     = "mistralai/Mistral-7B-Instruct-v0.3"
	defaultMaxTokens = 512
)

// Adapter implements providers.Provider for the Hugging Face Inference API
type Adapter struct {
	config    providers.Config
	transport *transport.Client
	logger    *zap.Logger
}

// NewAdapter creates a new Hugging Face adapter
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
		logger:    logger.With(zap.String("provider", "huggingface")),
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "huggingface"
}

// Enabled reports whether the provider is switched on
func (a *Adapter) Enabled() bool {
	return a.config.Enabled
}

// IsHealthy reports whether the adapter is enabled and has credentials
func (a *Adapter) IsHealthy(_ context.Context) bool {
	return a.config.Enabled && a.config.APIKey != ""
}

// Chat runs a text-generation request. The system prompt is folded into the
// input because the endpoint takes a single string.
func (a *Adapter) Chat(ctx context.Context, message string, cc providers.ChatContext) (string, error) {
	prompt := message
	if cc.System != "" {
		prompt = cc.System + "\n\n" + message
	}

	params := map[string]any{
		"max_new_tokens":   a.config.MaxTokens,
		"return_full_text": false,
	}
	if a.config.Temperature > 0 {
		params["temperature"] = a.config.Temperature
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.config.APIKey,
		"Content-Type":  "application/json",
	}
	for k, v := range a.config.Headers {
		headers[k] = v
	}

	body, err := a.transport.Fetch(ctx, transport.Request{
		Method:  "POST",
		URL:     strings.TrimRight(a.config.BaseURL, "/") + "/models/" + a.config.Model,
		Headers: headers,
		Body: map[string]any{
			"inputs":     prompt,
			"parameters": params,
		},
	}, "huggingface.chat")
	if err != nil {
		return "", err
	}

	text, err := generatedText(body)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "unexpected response", err)
	}
	return strings.TrimSpace(text), nil
}

// generatedText accepts the list form [{"generated_text": ...}], the single
// object form, and the {"error": ...} form the API uses for cold models.
func generatedText(body any) (string, error) {
	switch v := body.(type) {
	case []any:
		if len(v) == 0 {
			return "", fmt.Errorf("empty result list")
		}
		return generatedText(v[0])
	case map[string]any:
		if msg, ok := v["error"].(string); ok && msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		text, ok := v["generated_text"].(string)
		if !ok || strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("missing generated_text")
		}
		return text, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("empty body")
		}
		return v, nil
	default:
		return "", fmt.Errorf("unsupported body type %T", body)
	}
}
