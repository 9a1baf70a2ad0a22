// Package cache holds the in-process tenant lookup cache.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Tenants caches the immutable token -> application id mapping so the
// allocation path can skip a database round trip. Entries expire after ttl;
// a delete invalidates its token explicitly.
type Tenants struct {
	c   *ristretto.Cache[string, int64]
	ttl time.Duration
}

func NewTenants(maxItems int64, ttl time.Duration) (*Tenants, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Tenants{c: c, ttl: ttl}, nil
}

// Get returns the cached id for token. A nil *Tenants always misses.
func (t *Tenants) Get(token string) (int64, bool) {
	if t == nil {
		return 0, false
	}
	return t.c.Get(token)
}

func (t *Tenants) Set(token string, id int64) {
	if t == nil {
		return
	}
	t.c.SetWithTTL(token, id, 1, t.ttl)
	t.c.Wait()
}

func (t *Tenants) Invalidate(token string) {
	if t == nil {
		return
	}
	t.c.Del(token)
}

func (t *Tenants) Close() {
	if t == nil {
		return
	}
	t.c.Close()
}
