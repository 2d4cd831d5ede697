package listings

import (
	"context"
	"sync"
	"time"
)

// ColumnSource introspects the live column set of the listings table.
type ColumnSource interface {
	Columns(ctx context.Context) ([]string, error)
}

// SchemaCache memoizes the live column set with a TTL. It is explicit
// state owned by one long-lived service instance rather than ambient
// package state, so tests and reloads can Reset it.
type SchemaCache struct {
	src ColumnSource
	ttl time.Duration

	mu        sync.Mutex
	cols      map[string]struct{}
	fetchedAt time.Time
	now       func() time.Time
}

func NewSchemaCache(src ColumnSource, ttl time.Duration) *SchemaCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SchemaCache{src: src, ttl: ttl, now: time.Now}
}

// Columns returns the cached column set, refreshing it when stale.
func (c *SchemaCache) Columns(ctx context.Context) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cols != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.cols, nil
	}

	names, err := c.src.Columns(ctx)
	if err != nil {
		// keep serving a stale set over failing the caller
		if c.cols != nil {
			return c.cols, nil
		}
		return nil, err
	}

	cols := make(map[string]struct{}, len(names))
	for _, n := range names {
		cols[n] = struct{}{}
	}
	c.cols = cols
	c.fetchedAt = c.now()
	return cols, nil
}

// Reset drops the cached column set.
func (c *SchemaCache) Reset() {
	c.mu.Lock()
	c.cols = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
