// Package loader provides tile.Loader implementations backed by payload
// stores and MBTiles map tiles.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/eak1mov/go-tilestream/store"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"
)

// StoreLoader reads the payload of a tile from a store by index.
type StoreLoader struct {
	store     store.Store
	missingOK bool
	logger    *zap.Logger
}

var _ tile.Loader = (*StoreLoader)(nil)

type StoreOption func(*StoreLoader)

// WithMissingOK makes tiles absent from the store load with an empty payload
// instead of failing.
func WithMissingOK() StoreOption {
	return func(l *StoreLoader) { l.missingOK = true }
}

func WithLogger(logger *zap.Logger) StoreOption {
	return func(l *StoreLoader) { l.logger = logger }
}

func NewStoreLoader(s store.Store, opts ...StoreOption) *StoreLoader {
	l := &StoreLoader{store: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *StoreLoader) Load(ctx context.Context, t *tile.Tile) error {
	data, err := l.store.Get(ctx, t.Index)
	if errors.Is(err, store.ErrNotFound) && l.missingOK {
		l.logger.Debug("tile not in store, loading empty", zap.Stringer("index", t.Index))
		t.Payload = []byte{}
		return nil
	}
	if err != nil {
		return err
	}
	t.Payload = data
	return nil
}

// MapTileReader is implemented by mbtiles.Reader.
type MapTileReader interface {
	ReadTile(t maptile.Tile) ([]byte, error)
}

// MapTileLoader loads the web map tile covering the geographic centre of a
// tile at a fixed zoom.
type MapTileLoader struct {
	reader MapTileReader
	zoom   maptile.Zoom
}

var _ tile.Loader = (*MapTileLoader)(nil)

func NewMapTileLoader(r MapTileReader, zoom maptile.Zoom) *MapTileLoader {
	return &MapTileLoader{reader: r, zoom: zoom}
}

// MapTile returns the map tile the loader reads for t.
func (l *MapTileLoader) MapTile(t *tile.Tile) maptile.Tile {
	return MapTileAt(t, l.zoom)
}

// MapTileAt returns the web map tile covering the geographic centre of t.
func MapTileAt(t *tile.Tile, zoom maptile.Zoom) maptile.Tile {
	return maptile.At(t.GeoCenter().Point(), zoom)
}

// Load returns a store.ErrNotFound error when the map has no tile there.
func (l *MapTileLoader) Load(_ context.Context, t *tile.Tile) error {
	mt := l.MapTile(t)
	data, err := l.reader.ReadTile(mt)
	if err != nil {
		return fmt.Errorf("read map tile %d/%d/%d: %w", mt.Z, mt.X, mt.Y, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: map tile %d/%d/%d", store.ErrNotFound, mt.Z, mt.X, mt.Y)
	}
	t.Payload = data
	return nil
}

// Fallback tries loaders in order, moving to the next one only when the
// previous reported store.ErrNotFound. Other errors are returned at once.
func Fallback(loaders ...tile.Loader) tile.Loader {
	return tile.LoaderFunc(func(ctx context.Context, t *tile.Tile) error {
		err := fmt.Errorf("%w: no loader configured", store.ErrNotFound)
		for _, l := range loaders {
			if err = l.Load(ctx, t); !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return err
	})
}
