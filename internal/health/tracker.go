// Package health tracks temporary provider blocks after rate-limit failures.
//
// The block list is process-local. BlockProvider also writes a short-lived
// marker to the kv store so sibling processes can observe it, but the marker
// is never read back: cross-process blocking is not guaranteed.
package health

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/kv"
	"github.com/upb/chat-gateway/internal/transport"
)

const (
	DefaultMarkerPrefix  = "blocked:"
	DefaultMarkerTimeout = 500 * time.Millisecond
)

var rateLimitPhrases = []string{"quota", "rate limit", "too many requests"}

// Tracker holds the per-provider unblock deadlines for one process.
type Tracker struct {
	mu        sync.RWMutex
	unblockAt map[string]time.Time

	store         kv.Store
	markerPrefix  string
	markerTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithMarkerPrefix sets the kv key prefix for block markers
func WithMarkerPrefix(prefix string) Option {
	return func(t *Tracker) {
		t.markerPrefix = prefix
	}
}

// NewTracker creates a tracker. store may be nil, in which case no markers
// are written.
func NewTracker(store kv.Store, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		unblockAt:     make(map[string]time.Time),
		store:         store,
		markerPrefix:  DefaultMarkerPrefix,
		markerTimeout: DefaultMarkerTimeout,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsBlocked reports whether name has an unexpired block
func (t *Tracker) IsBlocked(name string) bool {
	t.mu.RLock()
	until, ok := t.unblockAt[name]
	t.mu.RUnlock()
	return ok && t.now().Before(until)
}

// BlockProvider blocks name for ttl and writes a best-effort shared marker.
func (t *Tracker) BlockProvider(ctx context.Context, name string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	until := t.now().Add(ttl)

	t.mu.Lock()
	t.unblockAt[name] = until
	t.mu.Unlock()

	t.logger.Warn("provider blocked",
		zap.String("provider", name),
		zap.Duration("ttl", ttl),
		zap.Time("unblock_at", until))

	t.writeMarker(ctx, name, until, ttl)
}

// Snapshot returns the active blocks keyed by provider name
func (t *Tracker) Snapshot() map[string]time.Time {
	now := t.now()
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Time, len(t.unblockAt))
	for name, until := range t.unblockAt {
		if now.Before(until) {
			out[name] = until
		}
	}
	return out
}

func (t *Tracker) writeMarker(ctx context.Context, name string, until time.Time, ttl time.Duration) {
	if t.store == nil {
		return
	}
	markerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.markerTimeout)
	defer cancel()

	value := strconv.FormatInt(until.UnixMilli(), 10)
	if err := t.store.Set(markerCtx, t.markerPrefix+name, value, ttl); err != nil {
		t.logger.Debug("failed to write block marker",
			zap.String("provider", name),
			zap.Error(err))
	}
}

// IsRateLimitError reports whether err looks like a rate limit or quota
// rejection: HTTP 429, or a message mentioning quota, rate limit or too many
// requests.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if transport.StatusCode(err) == http.StatusTooManyRequests {
		return true
	}
	var statusErr interface{ Status() int }
	if errors.As(err, &statusErr) && statusErr.Status() == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
