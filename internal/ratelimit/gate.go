// Package ratelimit provides process-wide request gates for external providers.
// Every caller of a provider goes through the same Gate, so the minimum spacing
// between requests holds whether lookups run sequentially or fan out.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate spaces requests at least Interval apart using a token bucket of size 1.
type Gate struct {
	name     string
	interval time.Duration
	limiter  *rate.Limiter
}

// NewGate creates an unshared gate. A non-positive interval never blocks.
func NewGate(name string, interval time.Duration) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Gate{
		name:     name,
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the next request may be issued or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// Name returns the provider name the gate was registered under
func (g *Gate) Name() string {
	if g == nil {
		return "none"
	}
	return g.name
}

// Interval returns the minimum spacing between requests
func (g *Gate) Interval() time.Duration { return g.interval }

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Gate)
)

// Shared returns the process-wide gate for name, creating it on first use.
// Later calls reuse the existing gate; a larger interval tightens it, a
// smaller one is ignored.
func Shared(name string, interval time.Duration) *Gate {
	registryMu.Lock()
	defer registryMu.Unlock()

	if g, ok := registry[name]; ok {
		if interval > g.interval {
			g.interval = interval
			g.limiter.SetLimit(rate.Every(interval))
		}
		return g
	}

	g := NewGate(name, interval)
	registry[name] = g
	return g
}

// Reset drops all shared gates. Tests use it to start from a clean registry.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Gate)
}
