// Package locks tracks which tickets have a mutating operation in flight.
package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smartdevs17/ticket-gateway/internal/config"
)

// ErrHeld is returned when the key already has an operation in flight
var ErrHeld = errors.New("operation already in flight")

// DefaultTTL bounds how long a crashed holder can block a key in shared stores
const DefaultTTL = 10 * time.Minute

// Release ends an in-flight operation
type Release func()

// Guard grants at most one holder per key
type Guard interface {
	// TryAcquire marks key as in flight or returns ErrHeld. It never waits.
	TryAcquire(ctx context.Context, key string) (Release, error)
	Close() error
}

// NewGuard builds the configured guard
func NewGuard(cfg config.LocksConfig) (Guard, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryGuard(), nil
	case "redis":
		guard, err := NewRedisGuard(RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return guard, nil
	default:
		return nil, fmt.Errorf("unsupported lock type %q", cfg.Type)
	}
}

// MemoryGuard keeps in-flight keys in process memory
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryGuard creates an empty in-process guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]struct{})}
}

// TryAcquire implements Guard
func (g *MemoryGuard) TryAcquire(ctx context.Context, key string) (Release, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return nil, ErrHeld
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

// Held reports whether key is currently in flight
func (g *MemoryGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

// Close implements Guard
func (g *MemoryGuard) Close() error {
	return nil
}
