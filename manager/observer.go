package manager

import (
	"context"
	"fmt"
	"math"

	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// Observer consumes positions in either planar or geographic form and
// exposes the last position in both.
type Observer interface {
	UpdatePlanar(ctx context.Context, p orb.Point) error
	Position() orb.Point

	UpdateGeo(ctx context.Context, c geo.Coordinate) error
	GeoPosition() (geo.Coordinate, bool)
}

var _ Observer = (*Manager)(nil)

// UpdatePlanar reports a new planar position.
//
// The position is always recorded; tiles are only re-evaluated when it moved
// more than Sensitivity on either axis since the last evaluation. A loader
// failure is returned as is and leaves the cursor where it was, so the same
// position can simply be resubmitted. Non-finite positions and positions
// outside the indexable plane fail with ErrInvalidPosition and change nothing.
func (m *Manager) UpdatePlanar(ctx context.Context, p orb.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePlanar(ctx, p)
}

// UpdateGeo reports a new geographic position. The first valid coordinate
// reported becomes the relative origin of the plane.
func (m *Manager) UpdateGeo(ctx context.Context, c geo.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !c.Valid() {
		return fmt.Errorf("%w: coordinate %v,%v", ErrInvalidPosition, c.Lat, c.Lon)
	}
	if m.hasOrigin {
		if err := m.checkPosition(geo.ToPlanar(m.origin, c)); err != nil {
			return err
		}
	} else {
		m.origin = c
		m.hasOrigin = true
		m.logger.Info("relative origin set", zap.Float64("lat", c.Lat), zap.Float64("lon", c.Lon))
	}

	if err := m.updatePlanar(ctx, geo.ToPlanar(m.origin, c)); err != nil {
		return err
	}
	m.geoPosition = c
	return nil
}

func (m *Manager) checkPosition(p orb.Point) error {
	if !tile.Indexable(p, m.cfg.TileSize) {
		return fmt.Errorf("%w: %v is outside the indexable plane", ErrInvalidPosition, p)
	}
	return nil
}

func (m *Manager) updatePlanar(ctx context.Context, p orb.Point) error {
	if err := m.checkPosition(p); err != nil {
		return err
	}
	prevPosition, prevGeo := m.position, m.geoPosition

	m.position = p
	if m.hasOrigin {
		m.geoPosition = geo.ToCoordinate(m.origin, p)
	}

	if !m.shouldEvaluate(p) {
		return nil
	}

	if err := m.evaluate(ctx, p); err != nil {
		m.position, m.geoPosition = prevPosition, prevGeo
		return err
	}
	return nil
}

func (m *Manager) shouldEvaluate(p orb.Point) bool {
	if !m.evaluated {
		return true
	}
	return math.Abs(p[0]-m.lastUpdate[0]) > m.cfg.Sensitivity ||
		math.Abs(p[1]-m.lastUpdate[1]) > m.cfg.Sensitivity
}

// Update is a single position report, planar or geographic.
type Update struct {
	Point      orb.Point
	Coordinate geo.Coordinate
	Geographic bool
}

func PlanarUpdate(p orb.Point) Update {
	return Update{Point: p}
}

func GeoUpdate(c geo.Coordinate) Update {
	return Update{Coordinate: c, Geographic: true}
}

func (m *Manager) Apply(ctx context.Context, u Update) error {
	if u.Geographic {
		return m.UpdateGeo(ctx, u.Coordinate)
	}
	return m.UpdatePlanar(ctx, u.Point)
}

// Run applies updates in arrival order until the channel is closed or ctx is
// done. Update errors are passed to onError, if set, and do not stop the loop.
func (m *Manager) Run(ctx context.Context, updates <-chan Update, onError func(Update, error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := m.Apply(ctx, u); err != nil {
				m.logger.Warn("position update failed", zap.Error(err))
				if onError != nil {
					onError(u, err)
				}
			}
		}
	}
}
