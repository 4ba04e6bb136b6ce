package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/eak1mov/go-tilestream/tile"
)

// Cached is a read-through in-memory cache in front of another Store.
// Entries cost their payload size in bytes. Payloads are copied in and out
// of the cache, so callers own the slices they pass and receive.
type Cached struct {
	next  Store
	cache *ristretto.Cache[uint64, []byte]
}

var _ Store = (*Cached)(nil)

// NewCached wraps next with a cache holding up to maxCost bytes of payload.
func NewCached(next Store, maxCost int64) (*Cached, error) {
	if maxCost <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxCost)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: max(maxCost/1024*10, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Get(ctx context.Context, idx tile.Index) ([]byte, error) {
	if data, ok := c.cache.Get(idx.Key()); ok {
		return bytes.Clone(data), nil
	}
	data, err := c.next.Get(ctx, idx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(idx.Key(), bytes.Clone(data), cost(data))
	return data, nil
}

func (c *Cached) Put(ctx context.Context, idx tile.Index, data []byte) error {
	if err := c.next.Put(ctx, idx, data); err != nil {
		return err
	}
	c.cache.Set(idx.Key(), bytes.Clone(data), cost(data))
	return nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() error {
	c.cache.Close()
	return c.next.Close()
}

func cost(data []byte) int64 {
	return max(int64(len(data)), 1)
}
