package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const windowDuration = time.Minute

// MemoryLimiter is an in-process sliding-window rate limiter. It keeps, per
// caller, the admission timestamps inside the trailing window and prunes
// them on every check. Check-then-append is atomic under the limiter's lock.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	logger  *zap.Logger

	now func() time.Time // injectable clock
}

// NewMemoryLimiter creates a sliding-window limiter admitting at most
// maxRequestsPerMinute requests per caller per trailing minute. A
// non-positive limit disables limiting.
func NewMemoryLimiter(maxRequestsPerMinute int, logger *zap.Logger) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		limit:   maxRequestsPerMinute,
		logger:  logger,
		now:     time.Now,
	}
}

// Admit prunes entries older than the trailing window and rejects when the
// remaining count has reached the limit; otherwise it records the admission.
func (l *MemoryLimiter) Admit(ctx context.Context, callerID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-windowDuration)

	recent := l.windows[callerID][:0]
	for _, ts := range l.windows[callerID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.limit {
		l.windows[callerID] = recent
		l.logger.Debug("rate limit rejection",
			zap.String("caller_id", callerID),
			zap.Int("limit", l.limit))
		return false, nil
	}

	l.windows[callerID] = append(recent, now)
	return true, nil
}
