// Package gateway routes a chat request across the configured providers.
//
// A request moves through a fixed sequence: synthesize a system prompt,
// augment with retrieved passages, try the primary provider (optionally
// forced first), walk the fallback chain, call the local provider, and
// finally answer with a fixed apology. Chat never returns an error.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/health"
	"github.com/upb/chat-gateway/internal/observability"
	"github.com/upb/chat-gateway/internal/persona"
	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/structured"
	"github.com/upb/chat-gateway/internal/transport"
)

const (
	DefaultApology            = "Sorry, I can't answer right now. Please try again in a few minutes."
	DefaultTopK               = 3
	DefaultStructuredAttempts = 2
	globalNamespace           = "global"
)

// DefaultBlockTTLs are the cooldowns applied after a rate-limit failure.
// The local provider is never blocked.
var DefaultBlockTTLs = map[providers.Variant]time.Duration{
	providers.Primary:    60 * time.Second,
	providers.SecondaryA: 60 * time.Second,
	providers.SecondaryB: 90 * time.Second,
	providers.SecondaryC: 90 * time.Second,
}

// Retriever supplies passages for augmentation
type Retriever interface {
	Retrieve(ctx context.Context, namespace, query string, topK int) ([]string, error)
}

// Options configures gateway behavior
type Options struct {
	// ForcePrimary tries the primary provider before anything else
	ForcePrimary bool

	// TopK is the number of passages requested for augmentation
	TopK int

	// StructuredAttempts bounds the JSON attempts on the primary provider
	StructuredAttempts int

	// Apology is returned when every provider fails
	Apology string

	// BlockTTLs overrides DefaultBlockTTLs per variant
	BlockTTLs map[providers.Variant]time.Duration
}

// Deps holds the collaborators injected into the gateway
type Deps struct {
	Registry  *providers.Registry
	Tracker   *health.Tracker
	Retriever Retriever
	Persona   persona.Builder
	Metrics   observability.Metrics
}

// Augmentation is the outcome of the retrieval step. Degraded is set when
// retrieval failed and the request went out unaugmented.
type Augmentation struct {
	Passages []string
	Degraded error
}

// Reply is the gateway's answer
type Reply struct {
	RequestID    string
	Text         string
	Structured   map[string]any
	Provider     string
	Variant      providers.Variant
	Augmentation Augmentation
}

// Gateway orchestrates providers, health tracking and retrieval
type Gateway struct {
	registry  *providers.Registry
	tracker   *health.Tracker
	retriever Retriever
	persona   persona.Builder
	metrics   observability.Metrics
	opts      Options
	logger    *zap.Logger
}

// New creates a new gateway
func New(deps Deps, opts Options, logger *zap.Logger) *Gateway {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.StructuredAttempts <= 0 {
		opts.StructuredAttempts = DefaultStructuredAttempts
	}
	if opts.Apology == "" {
		opts.Apology = DefaultApology
	}
	ttls := make(map[providers.Variant]time.Duration, len(DefaultBlockTTLs))
	for v, ttl := range DefaultBlockTTLs {
		ttls[v] = ttl
	}
	for v, ttl := range opts.BlockTTLs {
		ttls[v] = ttl
	}
	opts.BlockTTLs = ttls

	if deps.Registry == nil {
		deps.Registry = providers.NewRegistry()
	}
	if deps.Tracker == nil {
		deps.Tracker = health.NewTracker(nil, logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		registry:  deps.Registry,
		tracker:   deps.Tracker,
		retriever: deps.Retriever,
		persona:   deps.Persona,
		metrics:   deps.Metrics,
		opts:      opts,
		logger:    logger,
	}
}

// Chat answers message. cc is copied; the copy gets a synthesized system
// prompt when none was given. Structured requests that exhaust their attempts
// on the primary provider yield an empty Text.
func (g *Gateway) Chat(ctx context.Context, message string, cc providers.ChatContext) Reply {
	reply := Reply{RequestID: uuid.NewString()}
	logger := g.logger.With(zap.String("request_id", reply.RequestID))

	if cc.System == "" && g.persona != nil {
		cc.System = g.persona.SystemPrompt(ctx, cc)
	}

	reply.Augmentation = g.augment(ctx, message, cc, logger)
	prompt := withPassages(reply.Augmentation.Passages, message)

	primary, primaryErr := g.registry.Get(providers.Primary)

	if g.opts.ForcePrimary && primaryErr == nil && g.available(ctx, primary) {
		logger.Debug("forced primary attempt", zap.String("provider", primary.Name()))
		if done := g.tryPrimary(ctx, primary, prompt, &cc, &reply, logger); done {
			return reply
		}
	}

	// A forced attempt that hit a rate limit has blocked the primary by now
	if primaryErr == nil && g.available(ctx, primary) {
		if done := g.tryPrimary(ctx, primary, prompt, &cc, &reply, logger); done {
			return reply
		}
	}

	for _, variant := range providers.Fallbacks {
		p, err := g.registry.Get(variant)
		if err != nil {
			continue
		}
		if !g.available(ctx, p) {
			logger.Debug("skipping unavailable provider",
				zap.String("provider", p.Name()),
				zap.String("variant", string(variant)))
			continue
		}
		text, err := g.call(ctx, variant, p, prompt, cc)
		if err != nil {
			g.handleFailure(ctx, variant, p, err, logger)
			continue
		}
		g.fill(&reply, variant, p, text, cc)
		return reply
	}

	if local, err := g.registry.Get(providers.Local); err == nil {
		text, err := g.call(ctx, providers.Local, local, prompt, cc)
		if err == nil {
			g.fill(&reply, providers.Local, local, text, cc)
			return reply
		}
		logger.Warn("local provider failed",
			zap.String("provider", local.Name()),
			zap.Error(err))
	}

	logger.Error("all providers failed")
	reply.Text = g.opts.Apology
	return reply
}

// tryPrimary runs the primary attempt. It reports true when the request is
// finished: a reply was produced, or structured attempts were exhausted.
func (g *Gateway) tryPrimary(ctx context.Context, p providers.Provider, prompt string, cc *providers.ChatContext, reply *Reply, logger *zap.Logger) bool {
	if !cc.ExpectStructured {
		text, err := g.call(ctx, providers.Primary, p, prompt, *cc)
		if err != nil {
			g.handleFailure(ctx, providers.Primary, p, err, logger)
			return false
		}
		reply.Text = text
		reply.Provider = p.Name()
		reply.Variant = providers.Primary
		return true
	}

	obj, raw, err := g.structuredAttempts(ctx, p, prompt, cc, logger)
	if err != nil {
		g.handleFailure(ctx, providers.Primary, p, err, logger)
		return false
	}

	reply.Provider = p.Name()
	reply.Variant = providers.Primary
	if obj == nil {
		logger.Warn("structured attempts exhausted", zap.String("provider", p.Name()))
		reply.Text = ""
		return true
	}
	reply.Text = encodeStructured(obj, raw, logger)
	reply.Structured = obj
	return true
}

// encodeStructured renders a validated object as compact JSON, keeping the
// model's own text when the object cannot be encoded.
func encodeStructured(obj map[string]any, raw string, logger *zap.Logger) string {
	encoded, err := json.Marshal(obj)
	if err != nil {
		logger.Error("failed to encode structured reply", zap.Error(err))
		return raw
	}
	return string(encoded)
}

// structuredAttempts asks for a Recommendation object up to the configured
// number of times and returns the object with the reply it came from. A nil
// object with a nil error means every reply was unusable.
func (g *Gateway) structuredAttempts(ctx context.Context, p providers.Provider, prompt string, cc *providers.ChatContext, logger *zap.Logger) (map[string]any, string, error) {
	for attempt := 1; attempt <= g.opts.StructuredAttempts; attempt++ {
		fewShot := !cc.FewShotApplied
		msg := prompt + "\n\n" + structured.Instruction(attempt, fewShot)
		if fewShot {
			cc.FewShotApplied = true
		}

		text, err := g.call(ctx, providers.Primary, p, msg, *cc)
		if err != nil {
			return nil, "", err
		}

		obj, err := structured.ParseObject(text)
		if err == nil {
			result := structured.ValidateRecommendation(obj)
			if result.Valid {
				return obj, text, nil
			}
			err = result.Err()
		}
		logger.Warn("structured reply rejected",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, "", nil
}

func (g *Gateway) call(ctx context.Context, variant providers.Variant, p providers.Provider, message string, cc providers.ChatContext) (string, error) {
	labels := observability.RequestLabels{Provider: p.Name(), Variant: string(variant)}
	g.metrics.RecordRequest(ctx, labels)

	text, err := p.Chat(ctx, message, cc)
	if err != nil {
		g.metrics.RecordError(ctx, labels)
		return "", err
	}
	return text, nil
}

func (g *Gateway) handleFailure(ctx context.Context, variant providers.Variant, p providers.Provider, err error, logger *zap.Logger) {
	rateLimited := health.IsRateLimitError(err)
	logger.Warn("provider attempt failed",
		zap.String("provider", p.Name()),
		zap.String("variant", string(variant)),
		zap.Bool("rate_limited", rateLimited),
		zap.Bool("timed_out", transport.IsTimeout(err)),
		zap.Bool("bad_reply", providers.IsProviderError(err)),
		zap.Error(err))

	if !rateLimited {
		return
	}
	if ttl := g.opts.BlockTTLs[variant]; ttl > 0 {
		g.tracker.BlockProvider(ctx, p.Name(), ttl)
	}
}

func (g *Gateway) available(ctx context.Context, p providers.Provider) bool {
	return p.Enabled() && !g.tracker.IsBlocked(p.Name()) && p.IsHealthy(ctx)
}

func (g *Gateway) augment(ctx context.Context, message string, cc providers.ChatContext, logger *zap.Logger) Augmentation {
	if g.retriever == nil {
		return Augmentation{}
	}
	namespace := cc.UserKey
	if namespace == "" {
		namespace = globalNamespace
	}

	passages, err := g.retriever.Retrieve(ctx, namespace, message, g.opts.TopK)
	if err != nil {
		logger.Warn("augmentation skipped", zap.String("namespace", namespace), zap.Error(err))
		return Augmentation{Degraded: err}
	}
	if len(passages) > g.opts.TopK {
		passages = passages[:g.opts.TopK]
	}
	return Augmentation{Passages: passages}
}

// fill records a fallback or local answer. Structured requests answered
// outside the primary keep the raw text; the parsed object is attached only
// when it validates.
func (g *Gateway) fill(reply *Reply, variant providers.Variant, p providers.Provider, text string, cc providers.ChatContext) {
	reply.Text = text
	reply.Provider = p.Name()
	reply.Variant = variant
	if !cc.ExpectStructured {
		return
	}
	if obj, err := structured.ParseObject(text); err == nil && structured.ValidateRecommendation(obj).Valid {
		reply.Structured = obj
	}
}

// ProviderStatus describes one registered provider
type ProviderStatus struct {
	Name      string            `json:"name"`
	Variant   providers.Variant `json:"variant"`
	Enabled   bool              `json:"enabled"`
	Healthy   bool              `json:"healthy"`
	Blocked   bool              `json:"blocked"`
	UnblockAt *time.Time        `json:"unblock_at,omitempty"`
}

// Providers reports the registered providers in priority order
func (g *Gateway) Providers(ctx context.Context) []ProviderStatus {
	blocks := g.tracker.Snapshot()
	entries := g.registry.Ordered()

	out := make([]ProviderStatus, 0, len(entries))
	for _, e := range entries {
		status := ProviderStatus{
			Name:    e.Provider.Name(),
			Variant: e.Variant,
			Enabled: e.Provider.Enabled(),
			Healthy: e.Provider.IsHealthy(ctx),
		}
		if until, ok := blocks[status.Name]; ok {
			u := until
			status.Blocked = true
			status.UnblockAt = &u
		}
		out = append(out, status)
	}
	return out
}

func withPassages(passages []string, message string) string {
	if len(passages) == 0 {
		return message
	}
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "Passage %d: %s\n\n", i+1, p)
	}
	b.WriteString(message)
	return b.String()
}
