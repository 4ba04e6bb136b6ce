// Package tile provides the tile entity, its grid index and the interfaces of
// the collaborators that populate and materialize tiles.
package tile

import (
	"context"
	"fmt"

	"github.com/eak1mov/go-tilestream/geo"
	"github.com/paulmach/orb"
)

// State is a step of the tile lifecycle:
// Created -> Loaded -> Active <-> Inactive -> Destroyed.
type State uint8

const (
	StateCreated State = iota
	StateLoaded
	StateActive
	StateInactive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// HeightMap is a square grid of elevations sampled over the tile bounds,
// row 0 at the bottom edge.
type HeightMap struct {
	Resolution int
	Values     []float32
	Min        float32
	Max        float32
}

func (h HeightMap) At(x, y int) float32 {
	return h.Values[y*h.Resolution+x]
}

// Tile is a square region of the plane together with its loaded content.
type Tile struct {
	Index  Index
	Center orb.Point
	Size   float64
	Bounds Bounds

	// Origin is the geographic anchor of the plane the tile lives in.
	Origin geo.Coordinate

	HeightMap HeightMap
	Payload   []byte
	State     State
}

func New(idx Index, size float64, origin geo.Coordinate) *Tile {
	center := idx.Center(size)
	return &Tile{
		Index:  idx,
		Center: center,
		Size:   size,
		Bounds: NewBounds(center, size),
		Origin: origin,
		State:  StateCreated,
	}
}

func (t *Tile) Contains(p orb.Point, margin float64) bool {
	return t.Bounds.Contains(p, margin)
}

// GeoCenter returns the tile centre as a geographic coordinate.
func (t *Tile) GeoCenter() geo.Coordinate {
	return geo.ToCoordinate(t.Origin, t.Center)
}

// Loader populates the payload of a tile.
type Loader interface {
	// Load fills t.Payload. It blocks until the content is ready or loading fails.
	// Implementations may load concurrently internally but must not return early.
	Load(ctx context.Context, t *Tile) error
}

type LoaderFunc func(ctx context.Context, t *Tile) error

func (f LoaderFunc) Load(ctx context.Context, t *Tile) error { return f(ctx, t) }

// HeightProvider builds the height map of a tile before its content is loaded.
type HeightProvider interface {
	HeightMap(t *Tile, resolution int) HeightMap
}

// Activator materializes tiles in the consuming environment.
// Calls are synchronous; failures are the activator's own concern.
type Activator interface {
	Activate(t *Tile)
	Deactivate(t *Tile)
	Destroy(t *Tile)
}

// NopActivator ignores every call.
type NopActivator struct{}

func (NopActivator) Activate(*Tile)   {}
func (NopActivator) Deactivate(*Tile) {}
func (NopActivator) Destroy(*Tile)    {}
