package cache

import "time"

// LayeredCache is a two-level cache: an in-process L1 in front of a shared
// L2 (Redis). Writes go through to both; L2 hits are copied into L1 for at
// most l1TTL, since their remaining lifetime is unknown.
type LayeredCache struct {
	l1    *TTLCache
	l2    BytesCache
	l1TTL time.Duration
}

// NewLayeredCache wraps l2 with an in-memory L1.
func NewLayeredCache(l2 BytesCache, l1TTL time.Duration, clock Clock) *LayeredCache {
	return &LayeredCache{l1: NewTTLCacheWithClock(clock), l2: l2, l1TTL: l1TTL}
}

func (lc *LayeredCache) GetBytes(key string) ([]byte, bool, error) {
	if b, ok, _ := lc.l1.GetBytes(key); ok {
		return b, true, nil
	}
	b, ok, err := lc.l2.GetBytes(key)
	if err != nil || !ok {
		return nil, false, err
	}
	lc.l1.Set(key, b, lc.l1TTL)
	return b, true, nil
}

// SetBytes writes L2 first; L1 is only filled once L2 accepted the value.
func (lc *LayeredCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	if err := lc.l2.SetBytes(key, value, ttl); err != nil {
		return err
	}
	l1 := ttl
	if lc.l1TTL > 0 && (l1 <= 0 || lc.l1TTL < l1) {
		l1 = lc.l1TTL
	}
	lc.l1.Set(key, value, l1)
	return nil
}
