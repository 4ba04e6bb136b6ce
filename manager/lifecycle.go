package manager

import (
	"context"
	"fmt"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/tile"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// create loads a new tile at idx and inserts it into the cache.
// The tile is not activated. On loader failure nothing is inserted.
func (m *Manager) create(ctx context.Context, idx tile.Index) (*tile.Tile, error) {
	if _, ok := m.all[idx.Key()]; ok {
		panic(&InvariantError{Op: "create", Index: idx, Msg: "tile already exists"})
	}

	ctx, span := m.tracer.Start(ctx, "tilestream.create", trace.WithAttributes(
		attribute.Int("tile.i", int(idx.I)),
		attribute.Int("tile.j", int(idx.J)),
	))
	defer span.End()

	center := idx.Center(m.cfg.TileSize)
	m.publish(event.Event{Kind: event.LoadStarted, Index: idx, Center: center})

	t := tile.New(idx, m.cfg.TileSize, m.origin)
	t.HeightMap = m.heights.HeightMap(t, m.cfg.HeightMapResolution)

	// Creation is never interrupted once started.
	if err := m.loader.Load(context.WithoutCancel(ctx), t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		m.logger.Error("tile load failed", zap.Stringer("index", idx), zap.Error(err))
		return nil, fmt.Errorf("load tile %v: %w", idx, err)
	}
	t.State = tile.StateLoaded

	m.publish(event.Event{Kind: event.LoadFinished, Index: idx, Center: center, Tile: t})
	m.all[idx.Key()] = t

	m.logger.Debug("tile created", zap.Stringer("index", idx), zap.Int("payload", len(t.Payload)))
	return t, nil
}

func (m *Manager) activate(idx tile.Index) {
	key := idx.Key()
	if _, ok := m.active[key]; ok {
		return
	}
	t, ok := m.all[key]
	if !ok {
		panic(&InvariantError{Op: "activate", Index: idx, Msg: "tile is not loaded"})
	}

	m.activator.Activate(t)
	m.active[key] = t
	t.State = tile.StateActive
	m.publish(event.Event{Kind: event.Activated, Index: idx, Center: t.Center, Tile: t})

	m.logger.Debug("tile activated", zap.Stringer("index", idx))
}

func (m *Manager) deactivate(idx tile.Index) {
	key := idx.Key()
	t, ok := m.active[key]
	if !ok {
		return
	}

	m.activator.Deactivate(t)
	delete(m.active, key)
	t.State = tile.StateInactive
	m.publish(event.Event{Kind: event.Deactivated, Index: idx, Center: t.Center, Tile: t})

	m.logger.Debug("tile deactivated", zap.Stringer("index", idx))
}

// destroy removes an inactive tile from the cache.
// Destroying an active tile panics before anything is changed.
func (m *Manager) destroy(idx tile.Index) {
	key := idx.Key()
	t, ok := m.all[key]
	if !ok {
		panic(&InvariantError{Op: "destroy", Index: idx, Msg: "tile is not loaded"})
	}
	if _, active := m.active[key]; active {
		panic(&InvariantError{Op: "destroy", Index: idx, Msg: "tile is still active"})
	}

	m.activator.Destroy(t)
	delete(m.all, key)
	t.State = tile.StateDestroyed
	m.publish(event.Event{Kind: event.Destroyed, Index: idx, Center: t.Center, Tile: t})

	m.logger.Debug("tile destroyed", zap.Stringer("index", idx))
}

func (m *Manager) publish(e event.Event) {
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	m.sink.Publish(e)
}
