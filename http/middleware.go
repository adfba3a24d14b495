package http

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const correlationIDContextKey contextKey = "correlationID"

// NewCorrelationID returns incoming when set, a fresh uuid otherwise
func NewCorrelationID(incoming string) string {
	if incoming != "" {
		return incoming
	}
	return uuid.New().String()
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// CorrelationIDFromContext retrieves correlation ID from context
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns logger tagged with the request correlation id
func LoggerFromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return logger.With(zap.String("correlation_id", id))
	}
	return logger
}

// RateLimiter hands out one token bucket per client key
type RateLimiter struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

type limiterEntry struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess time.Time
}

// NewRateLimiter allows requestsPerSecond per client with the given burst
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
	}
}

// Limit returns the configured per-client rate
func (rl *RateLimiter) Limit() rate.Limit {
	return rl.limit
}

// Allow consumes a token for key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := time.Now()
	if val, ok := rl.limiters.Load(key); ok {
		entry := val.(*limiterEntry)
		entry.touch(now)
		return entry.limiter
	}

	entry := &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst), lastAccess: now}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry).limiter
}

// Sweep drops limiters idle since before now minus the idle TTL
func (rl *RateLimiter) Sweep(now time.Time) {
	rl.limiters.Range(func(key, value interface{}) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		idle := now.Sub(entry.lastAccess) > rl.idleTTL
		entry.mu.Unlock()
		if idle {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Run sweeps idle limiters every interval until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

func (e *limiterEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastAccess = now
	e.mu.Unlock()
}
