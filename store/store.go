// Package store persists tile payloads keyed by tile index.
//
// Backends: DirStore (one file per tile), SQLiteStore and RedisStore.
// Cached and Compressed wrap any Store.
package store

import (
	"context"
	"errors"

	"github.com/eak1mov/go-tilestream/tile"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("tilestream: tile not found")
	ErrInvalidPattern = errors.New("tilestream: invalid file pattern")
)

// Store reads and writes raw tile payloads. Get returns ErrNotFound for a
// tile that was never written. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, idx tile.Index) ([]byte, error)
	Put(ctx context.Context, idx tile.Index, data []byte) error
	Close() error
}

type config struct {
	logger *zap.Logger
}

type Option func(*config)

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func newConfig(opts []Option) config {
	c := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
