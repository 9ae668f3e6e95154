package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/transport"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = goopenai.GPT4oMini
)

// Adapter implements providers.Provider for OpenAI and any
// OpenAI-compatible API (OpenRouter, Groq, vLLM).
type Adapter struct {
	name      string
	config    providers.Config
	client    *goopenai.Client
	transport *transport.Client
	logger    *zap.Logger
}

// NewAdapter creates a new OpenAI-compatible adapter registered under name
func NewAdapter(name string, config providers.Config, tc *transport.Client, logger *zap.Logger) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		name:      name,
		config:    config,
		client:    newClient(config),
		transport: tc,
		logger:    logger.With(zap.String("provider", name)),
	}
}

func newClient(config providers.Config) *goopenai.Client {
	clientConfig := goopenai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if len(config.Headers) > 0 {
		clientConfig.HTTPClient = &http.Client{
			Transport: &headerTransport{headers: config.Headers, base: http.DefaultTransport},
		}
	}
	return goopenai.NewClientWithConfig(clientConfig)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// Enabled reports whether the provider is switched on
func (a *Adapter) Enabled() bool {
	return a.config.Enabled
}

// IsHealthy reports whether the adapter is enabled and has credentials
func (a *Adapter) IsHealthy(_ context.Context) bool {
	return a.config.Enabled && a.config.APIKey != ""
}

// Chat performs a chat completion and returns the first choice's content
func (a *Adapter) Chat(ctx context.Context, message string, cc providers.ChatContext) (string, error) {
	req := a.buildRequest(message, cc)

	var resp goopenai.ChatCompletionResponse
	err := a.transport.Call(ctx, a.name+".chat", func(ctx context.Context) error {
		var err error
		resp, err = a.client.CreateChatCompletion(ctx, req)
		return mapError(a.name, err)
	})
	if err != nil {
		return "", err
	}

	// Empty completions are model output, so they stay outside the retry loop
	if len(resp.Choices) == 0 {
		return "", providers.NewProviderError(a.name, "empty response", nil)
	}
	reply := resp.Choices[0].Message.Content

	a.logger.Debug("chat completion succeeded",
		zap.String("model", a.config.Model),
		zap.Bool("structured", cc.ExpectStructured),
		zap.Int("reply_length", len(reply)))
	return reply, nil
}

func (a *Adapter) buildRequest(message string, cc providers.ChatContext) goopenai.ChatCompletionRequest {
	msgs := make([]goopenai.ChatCompletionMessage, 0, 2)
	if cc.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: cc.System,
		})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: message,
	})

	req := goopenai.ChatCompletionRequest{
		Model:    a.config.Model,
		Messages: msgs,
		User:     cc.UserKey,
	}
	if a.config.MaxTokens > 0 {
		req.MaxTokens = a.config.MaxTokens
	}
	if a.config.Temperature > 0 {
		req.Temperature = float32(a.config.Temperature)
	}
	if cc.ExpectStructured {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// mapError converts go-openai HTTP failures into *transport.APIError so the
// retry policy and rate-limit detection see the status code.
func mapError(label string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &transport.APIError{Label: label, Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &transport.APIError{Label: label, Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}

// headerTransport adds static headers to every request
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
