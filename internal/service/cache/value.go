package cache

import (
	"sync"
	"time"
)

// Value holds one cached value with the instant it was fetched and its TTL.
type Value[T any] struct {
	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	set       bool
	ttl       time.Duration
	clock     Clock
}

// NewValue creates an empty Value. A nil clock means the wall clock.
func NewValue[T any](ttl time.Duration, clock Clock) *Value[T] {
	if clock == nil {
		clock = wallClock{}
	}
	return &Value[T]{ttl: ttl, clock: clock}
}

// Get returns the value if present and not older than the TTL.
func (v *Value[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var zero T
	if !v.set {
		return zero, false
	}
	if v.ttl > 0 && v.clock.Now().Sub(v.fetchedAt) >= v.ttl {
		return zero, false
	}
	return v.value, true
}

// Set stores val as fetched now.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.value = val
	v.fetchedAt = v.clock.Now()
	v.set = true
	v.mu.Unlock()
}

// FetchedAt returns when the value was last stored.
func (v *Value[T]) FetchedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fetchedAt
}

// Load returns the cached value or calls fetch and caches its result.
// Fetch errors are returned as-is and nothing is cached.
func (v *Value[T]) Load(fetch func() (T, error)) (T, error) {
	if val, ok := v.Get(); ok {
		return val, nil
	}
	val, err := fetch()
	if err != nil {
		return val, err
	}
	v.Set(val)
	return val, nil
}
