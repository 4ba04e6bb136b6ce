// Package mbtiles reads and writes map tiles in the MBTiles SQLite format.
//
// Tiles are addressed with XYZ coordinates; rows are flipped to TMS on disk.
package mbtiles

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Reader reads map tiles and metadata from an MBTiles file.
type Reader struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewReader opens the MBTiles file at filePath read-only.
//
// The returned Reader must be closed after use to release database resources.
func NewReader(filePath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", filePath))
	if err != nil {
		return nil, err
	}

	stmt, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Reader{db: db, stmt: stmt}, nil
}

func (r *Reader) Close() error {
	return errors.Join(r.stmt.Close(), r.db.Close())
}

// Metadata is the part of the metadata table the streaming runtime relies on.
// Zoom and bounds are optional in MBTiles files; their Has flags tell whether
// the file declared them.
type Metadata struct {
	Name    string
	Format  string
	MinZoom maptile.Zoom
	MaxZoom maptile.Zoom
	HasZoom bool
	Bounds  orb.Bound
	// HasBounds is false when the file does not declare its extent.
	HasBounds bool
}

// CoversZoom reports whether tiles may exist at z. Files that do not declare
// a zoom range cover every zoom.
func (m Metadata) CoversZoom(z maptile.Zoom) bool {
	return !m.HasZoom || (z >= m.MinZoom && z <= m.MaxZoom)
}

// Metadata reads and parses the metadata table.
func (r *Reader) Metadata() (Metadata, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, err
		}
		values[name] = value
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, err
	}
	return parseMetadata(values)
}

func parseMetadata(values map[string]string) (Metadata, error) {
	md := Metadata{Name: values["name"], Format: values["format"]}

	minZoom, hasMin := values["minzoom"]
	maxZoom, hasMax := values["maxzoom"]
	if hasMin && hasMax {
		lo, err := strconv.ParseUint(minZoom, 10, 8)
		if err != nil {
			return Metadata{}, fmt.Errorf("invalid minzoom %q: %w", minZoom, err)
		}
		hi, err := strconv.ParseUint(maxZoom, 10, 8)
		if err != nil {
			return Metadata{}, fmt.Errorf("invalid maxzoom %q: %w", maxZoom, err)
		}
		md.MinZoom, md.MaxZoom, md.HasZoom = maptile.Zoom(lo), maptile.Zoom(hi), true
	}

	if bounds, ok := values["bounds"]; ok {
		b, err := parseBounds(bounds)
		if err != nil {
			return Metadata{}, err
		}
		md.Bounds, md.HasBounds = b, true
	}
	return md, nil
}

// parseBounds parses "west,south,east,north" in degrees.
func parseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid bounds %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bounds %q: %w", s, err)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func formatBounds(b orb.Bound) string {
	return fmt.Sprintf("%g,%g,%g,%g", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// ReadTile returns the tile data, or an empty slice if the tile is absent.
func (r *Reader) ReadTile(t maptile.Tile) ([]byte, error) {
	var data []byte
	if err := r.stmt.QueryRow(uint32(t.Z), t.X, flipY(t)).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make([]byte, 0), nil
		}
		return nil, err
	}
	return data, nil
}

// flipY converts between XYZ and TMS rows; the conversion is its own inverse.
func flipY(t maptile.Tile) uint32 {
	return (1 << uint32(t.Z)) - 1 - t.Y
}
