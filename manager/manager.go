// Package manager streams tiles around a moving observer.
//
// A Manager consumes position updates, keeps the tile containing the observer
// loaded and active, preloads the neighbor the observer is heading to, and
// evicts tiles that fell far behind. It is single-writer: every update runs to
// completion, including all loader and activator calls it triggers, before the
// next one starts.
package manager

import (
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/eak1mov/go-tilestream/manager"

// Manager tracks the observer and the tiles loaded around it.
type Manager struct {
	mu sync.Mutex

	cfg       Config
	loader    tile.Loader
	heights   tile.HeightProvider
	activator tile.Activator
	sink      event.Sink
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	origin    geo.Coordinate
	hasOrigin bool

	position    orb.Point
	geoPosition geo.Coordinate
	lastUpdate  orb.Point
	evaluated   bool
	current     tile.Index

	all    map[uint64]*tile.Tile
	active map[uint64]*tile.Tile
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeightProvider sets the source of per-tile height maps.
func WithHeightProvider(p tile.HeightProvider) Option {
	return func(m *Manager) { m.heights = p }
}

// WithActivator sets the callback that activates and deactivates tiles.
func WithActivator(a tile.Activator) Option {
	return func(m *Manager) { m.activator = a }
}

// WithSink sets the receiver of lifecycle events. Use an event.Bus to fan
// out to several sinks.
func WithSink(s event.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// New creates a Manager. Only the loader is mandatory: heights default to an
// empty height map, activation and events are dropped.
func New(cfg Config, loader tile.Loader, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, ErrNoLoader
	}

	m := &Manager{
		cfg:       cfg,
		loader:    loader,
		heights:   noHeights{},
		activator: tile.NopActivator{},
		sink:      event.Discard,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		all:       make(map[uint64]*tile.Tile),
		active:    make(map[uint64]*tile.Tile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type noHeights struct{}

func (noHeights) HeightMap(*tile.Tile, int) tile.HeightMap { return tile.HeightMap{} }

func (m *Manager) Config() Config {
	return m.cfg
}

// Origin returns the relative origin, if a geographic position has been seen.
func (m *Manager) Origin() (geo.Coordinate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.origin, m.hasOrigin
}

// Position returns the last reported planar position.
func (m *Manager) Position() orb.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// GeoPosition returns the last reported position as a geographic coordinate.
// It is unknown until an origin has been established.
func (m *Manager) GeoPosition() (geo.Coordinate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.geoPosition, m.hasOrigin
}

// CurrentIndex returns the index of the tile containing the last evaluated position.
func (m *Manager) CurrentIndex() (tile.Index, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.evaluated
}

// Current returns the tile containing the last evaluated position.
func (m *Manager) Current() (*tile.Tile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.evaluated {
		return nil, false
	}
	t, ok := m.all[m.current.Key()]
	return t, ok
}

// Tile returns the loaded tile at idx.
func (m *Manager) Tile(idx tile.Index) (*tile.Tile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.all[idx.Key()]
	return t, ok
}

// IsActive reports whether the tile at idx is loaded and active.
func (m *Manager) IsActive(idx tile.Index) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[idx.Key()]
	return ok
}

// Count returns the number of loaded tiles, active or not.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.all)
}

// ActiveCount returns the number of active tiles.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Tiles iterates over all loaded tiles ordered by index.
// The iterator works on a snapshot taken when iteration starts.
func (m *Manager) Tiles() iter.Seq2[tile.Index, *tile.Tile] {
	return func(yield func(tile.Index, *tile.Tile) bool) {
		m.mu.Lock()
		tiles := sorted(m.all)
		m.mu.Unlock()
		for _, t := range tiles {
			if !yield(t.Index, t) {
				return
			}
		}
	}
}

// ActiveTiles iterates over active tiles ordered by index.
func (m *Manager) ActiveTiles() iter.Seq2[tile.Index, *tile.Tile] {
	return func(yield func(tile.Index, *tile.Tile) bool) {
		m.mu.Lock()
		tiles := sorted(m.active)
		m.mu.Unlock()
		for _, t := range tiles {
			if !yield(t.Index, t) {
				return
			}
		}
	}
}

func sorted(tiles map[uint64]*tile.Tile) []*tile.Tile {
	result := make([]*tile.Tile, 0, len(tiles))
	for _, t := range tiles {
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b *tile.Tile) int {
		return tile.Compare(a.Index, b.Index)
	})
	return result
}

// Snapshot is a point-in-time view of the manager state.
type Snapshot struct {
	Position    orb.Point       `json:"position"`
	GeoPosition *geo.Coordinate `json:"geo_position,omitempty"`
	Origin      *geo.Coordinate `json:"origin,omitempty"`
	Current     *tile.Index     `json:"current,omitempty"`
	Tiles       []TileInfo      `json:"tiles"`
}

type TileInfo struct {
	Index       tile.Index `json:"index"`
	Center      orb.Point  `json:"center"`
	State       string     `json:"state"`
	PayloadSize int        `json:"payload_size"`
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Position: m.position, Tiles: make([]TileInfo, 0, len(m.all))}
	if m.hasOrigin {
		origin, position := m.origin, m.geoPosition
		s.Origin = &origin
		s.GeoPosition = &position
	}
	if m.evaluated {
		current := m.current
		s.Current = &current
	}
	for _, t := range sorted(m.all) {
		s.Tiles = append(s.Tiles, TileInfo{
			Index:       t.Index,
			Center:      t.Center,
			State:       t.State.String(),
			PayloadSize: len(t.Payload),
		})
	}
	return s
}

// checkInvariants panics if a tile is stored under another index's key or
// the active set is not a subset of all tiles.
func (m *Manager) checkInvariants() {
	for key, t := range m.all {
		if tile.IndexFromKey(key) != t.Index {
			panic(&InvariantError{Op: "check", Index: t.Index, Msg: "tile stored under key of " + tile.IndexFromKey(key).String()})
		}
	}
	for key, t := range m.active {
		if _, ok := m.all[key]; !ok {
			panic(&InvariantError{Op: "check", Index: t.Index, Msg: "active tile is not loaded"})
		}
	}
}
