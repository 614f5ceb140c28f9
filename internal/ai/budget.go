package ai

import (
	"fmt"
	"sync"
)

// Budget checks and records token usage per scope. The ingestion pipeline
// scopes usage by subject.
type Budget interface {
	// Allow reports whether the scope has budget remaining.
	Allow(scope string) bool
	// Record adds token usage to a scope.
	Record(scope string, tokens int) error
	// Usage returns tokens used and the limit for a scope (0 = unlimited).
	Usage(scope string) (used, limit int64)
}

// InMemoryBudget tracks usage in process. A scope without an explicit
// limit uses the default limit; a zero limit means unlimited.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64
	limits       map[string]int64
	usage        map[string]int64
}

// NewInMemoryBudget creates a budget tracker with the given default limit.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: defaultLimit,
		limits:       make(map[string]int64),
		usage:        make(map[string]int64),
	}
}

// SetLimit overrides the limit for one scope.
func (b *InMemoryBudget) SetLimit(scope string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[scope] = tokens
}

func (b *InMemoryBudget) limitLocked(scope string) int64 {
	if l, ok := b.limits[scope]; ok {
		return l
	}
	return b.defaultLimit
}

func (b *InMemoryBudget) Allow(scope string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limitLocked(scope)
	if limit <= 0 {
		return true
	}
	return b.usage[scope] < limit
}

func (b *InMemoryBudget) Record(scope string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[scope] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(scope string) (int64, int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[scope], b.limitLocked(scope)
}
