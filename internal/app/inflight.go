package app

import (
	"context"
	"sync"

	"github.com/tiffinbox/subscription-edit-service/internal/domain"
)

// InFlightGuard allows one request per key at a time. Acquire never waits: a
// held key fails immediately with domain.ErrEditInFlight.
type InFlightGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryInFlightGuard is an InFlightGuard for a single service instance.
type MemoryInFlightGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryInFlightGuard() *MemoryInFlightGuard {
	return &MemoryInFlightGuard{held: make(map[string]struct{})}
}

func (g *MemoryInFlightGuard) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, domain.ErrEditInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}
