package ollama

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/transport"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.1"
	healthTimeout  = 2 * time.Second
)

// Adapter implements providers.Provider for a local Ollama server. It is the
// last resort, so the gateway calls it without checking health.
type Adapter struct {
	config    providers.Config
	transport *transport.Client
	logger    *zap.Logger
}

// NewAdapter creates a new Ollama adapter
func NewAdapter(config providers.Config, tc *transport.Client, logger *zap.Logger) *Adapter {
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
		config:    config,
		transport: tc,
		logger:    logger.With(zap.String("provider", "ollama")),
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return "ollama"
}

// Enabled reports whether the provider is switched on
func (a *Adapter) Enabled() bool {
	return a.config.Enabled
}

// IsHealthy pings the tags endpoint once, without retries
func (a *Adapter) IsHealthy(ctx context.Context) bool {
	_, err := a.transport.Fetch(ctx, transport.Request{
		Method: "GET",
		URL:    a.url("/api/tags"),
	}, "ollama.health", transport.WithRetries(0), transport.WithTimeout(healthTimeout))
	return err == nil
}

// Chat sends a non-streaming chat request. Whatever content the model
// produced is returned, even if generation was cut short.
func (a *Adapter) Chat(ctx context.Context, message string, cc providers.ChatContext) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if cc.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: cc.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: message})

	req := chatRequest{
		Model:    a.config.Model,
		Messages: msgs,
		Stream:   false,
	}
	if cc.ExpectStructured {
		req.Format = "json"
	}
	if a.config.Temperature > 0 || a.config.MaxTokens > 0 {
		req.Options = map[string]any{}
		if a.config.Temperature > 0 {
			req.Options["temperature"] = a.config.Temperature
		}
		if a.config.MaxTokens > 0 {
			req.Options["num_predict"] = a.config.MaxTokens
		}
	}

	var resp chatResponse
	err := a.transport.FetchJSON(ctx, transport.Request{
		Method:  "POST",
		URL:     a.url("/api/chat"),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    req,
	}, "ollama.chat", &resp)
	if err != nil {
		return "", err
	}

	if resp.Message.Content == "" {
		return "", providers.NewProviderError(a.Name(), "empty response", nil)
	}
	if !resp.Done {
		a.logger.Warn("returning partial local reply", zap.String("done_reason", resp.DoneReason))
	}
	return resp.Message.Content, nil
}

func (a *Adapter) url(path string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + path
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model      string      `json:"model"`
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
}
