package mbtiles

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"
)

// Writer fills a new MBTiles file. Tiles may be written in any order and
// written again to replace them; Finalize records the zoom range and extent
// of everything written.
type Writer struct {
	db     *sql.DB
	put    *sql.Stmt
	logger *zap.Logger

	name   string
	format string

	written   int
	bound     orb.Bound
	minZoom   maptile.Zoom
	maxZoom   maptile.Zoom
	finalized bool
}

type WriterOption func(*Writer)

// WithName sets the tileset name stored in the metadata.
func WithName(name string) WriterOption {
	return func(w *Writer) { w.name = name }
}

// WithFormat sets the payload format stored in the metadata, e.g. "png".
func WithFormat(format string) WriterOption {
	return func(w *Writer) { w.format = format }
}

func WithLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter creates filePath with the MBTiles schema. An existing file is
// never reused.
func NewWriter(filePath string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{logger: zap.NewNop(), format: "application/octet-stream"}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(filePath); err == nil {
		return nil, fmt.Errorf("%s already exists", filePath)
	}

	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE metadata (name TEXT PRIMARY KEY, value TEXT);
		CREATE TABLE tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB
		);
		CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	w.put, err = db.Prepare(`
		INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)
		ON CONFLICT (zoom_level, tile_column, tile_row) DO UPDATE SET tile_data = excluded.tile_data`)
	if err != nil {
		db.Close()
		return nil, err
	}
	w.db = db
	return w, nil
}

func (w *Writer) WriteTile(t maptile.Tile, data []byte) error {
	if w.finalized {
		return errors.New("mbtiles: write after finalize")
	}
	if _, err := w.put.Exec(uint32(t.Z), t.X, flipY(t), data); err != nil {
		return fmt.Errorf("write map tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}

	if w.written == 0 {
		w.bound, w.minZoom, w.maxZoom = t.Bound(), t.Z, t.Z
	} else {
		w.bound = w.bound.Union(t.Bound())
		w.minZoom, w.maxZoom = min(w.minZoom, t.Z), max(w.maxZoom, t.Z)
	}
	w.written++
	return nil
}

// Finalize writes the metadata. Zoom range and bounds are only recorded when
// at least one tile was written.
func (w *Writer) Finalize() error {
	if w.finalized {
		panic("mbtiles: Finalize called twice")
	}
	w.finalized = true

	metadata := map[string]string{"name": w.name, "format": w.format}
	if w.written > 0 {
		metadata["minzoom"] = strconv.Itoa(int(w.minZoom))
		metadata["maxzoom"] = strconv.Itoa(int(w.maxZoom))
		metadata["bounds"] = formatBounds(w.bound)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	for name, value := range metadata {
		if _, err := tx.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", name, value); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	w.logger.Debug("mbtiles finalized", zap.Int("tiles", w.written), zap.Any("metadata", metadata))
	return nil
}

func (w *Writer) Close() error {
	return errors.Join(w.put.Close(), w.db.Close())
}
