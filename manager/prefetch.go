package manager

import (
	"context"

	"github.com/eak1mov/go-tilestream/tile"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// evaluate resolves the tile under p, preloads the neighbor ahead and evicts
// far tiles. The cursor is only advanced when every step succeeded.
func (m *Manager) evaluate(ctx context.Context, p orb.Point) (err error) {
	ctx, span := m.tracer.Start(ctx, "tilestream.update", trace.WithAttributes(
		attribute.Float64("position.x", p[0]),
		attribute.Float64("position.y", p[1]),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
		}
		span.End()
	}()

	idx := tile.IndexAt(p, m.cfg.TileSize)
	span.SetAttributes(attribute.Int("tile.i", int(idx.I)), attribute.Int("tile.j", int(idx.J)))

	t, ok := m.all[idx.Key()]
	if !ok {
		// Expected once per session. Later it means the observer skipped the
		// preload zone, e.g. by jumping.
		if m.evaluated {
			m.logger.Warn("entered tile that was not preloaded",
				zap.Stringer("index", idx), zap.Stringer("previous", m.current))
		}
		if t, err = m.create(ctx, idx); err != nil {
			return err
		}
	}
	m.activate(idx)

	if !t.Contains(p, m.cfg.Margin) {
		if err := m.preload(ctx, t, p); err != nil {
			return err
		}
	}

	m.evict(idx)
	m.checkInvariants()

	m.current = idx
	m.lastUpdate = p
	m.evaluated = true
	return nil
}

// preload creates the neighbor of t the observer is heading to and
// deactivates the tiles behind it. The neighbor is not activated.
func (m *Manager) preload(ctx context.Context, t *tile.Tile, p orb.Point) error {
	dir := t.Bounds.Direction(p)
	for _, idx := range t.Index.Behind(dir) {
		m.deactivate(idx)
	}

	next := t.Index.Neighbor(dir)
	if _, ok := m.all[next.Key()]; !ok {
		m.logger.Debug("preloading tile", zap.Stringer("index", next), zap.Stringer("direction", dir))
		if _, err := m.create(ctx, next); err != nil {
			return err
		}
	}

	m.activate(t.Index)
	return nil
}

// evict destroys every tile farther than the eviction threshold from current
// once the cache holds more than CacheSize tiles. A far tile that is still
// active is deactivated first.
func (m *Manager) evict(current tile.Index) {
	if !m.cfg.AutoEvict || len(m.all) <= m.cfg.CacheSize {
		return
	}
	for key, t := range m.all {
		if t.Index.Manhattan(current) <= m.cfg.EvictionThreshold {
			continue
		}
		if _, active := m.active[key]; active {
			m.logger.Warn("evicting tile that is still active", zap.Stringer("index", t.Index))
			m.deactivate(t.Index)
		}
		m.destroy(t.Index)
	}
}
