package rate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Decision is the outcome of one Check call.
type Decision struct {
	Limited   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key in fixed windows. A hit is recorded on every
// call, limited or not.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// decide applies the fixed-window rule to a post-increment count.
func decide(count, limit int, resetAt time.Time) Decision {
	if count > limit {
		return Decision{Limited: true, Remaining: 0, ResetAt: resetAt}
	}
	return Decision{Limited: false, Remaining: limit - count, ResetAt: resetAt}
}

type MemoryLimiter struct {
	mu    sync.Mutex
	store map[string]*bucket
	now   func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewMemory() *MemoryLimiter {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{store: make(map[string]*bucket), now: now}
}

func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.store[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		m.store[key] = b
		return decide(b.count, limit, b.resetAt), nil
	}

	b.count++
	return decide(b.count, limit, b.resetAt), nil
}

// Sweep drops every record whose window ended before now and reports how many
// were removed.
func (m *MemoryLimiter) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, b := range m.store {
		if now.After(b.resetAt) {
			delete(m.store, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// Run sweeps expired records every interval until ctx is done.
func (m *MemoryLimiter) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 && logger != nil {
				logger.Debug("swept rate-limit windows", "component", "rate", "removed", n)
			}
		}
	}
}
