// Package height builds tile height maps from elevation sources.
package height

import (
	"math"

	"github.com/eak1mov/go-tilestream/geo"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/paulmach/orb"
)

// Flat reports the same elevation everywhere.
type Flat struct {
	Elevation float32
}

var _ tile.HeightProvider = Flat{}

func (f Flat) HeightMap(t *tile.Tile, resolution int) tile.HeightMap {
	return Sample(t, resolution, func(orb.Point) float64 { return float64(f.Elevation) })
}

// Func samples a planar elevation function.
type Func func(p orb.Point) float64

func (f Func) HeightMap(t *tile.Tile, resolution int) tile.HeightMap {
	return Sample(t, resolution, f)
}

// Geographic samples an elevation function of geographic coordinates,
// projected through the tile origin.
type Geographic func(c geo.Coordinate) float64

func (f Geographic) HeightMap(t *tile.Tile, resolution int) tile.HeightMap {
	return Sample(t, resolution, func(p orb.Point) float64 {
		return f(geo.ToCoordinate(t.Origin, p))
	})
}

// Sample evaluates fn on a resolution x resolution grid spanning the tile
// bounds edge to edge, row 0 at the bottom. Resolution 1 samples the centre;
// resolution 0 yields an empty map.
func Sample(t *tile.Tile, resolution int, fn func(orb.Point) float64) tile.HeightMap {
	if resolution <= 0 {
		return tile.HeightMap{}
	}
	if resolution == 1 {
		v := float32(fn(t.Center))
		return tile.HeightMap{Resolution: 1, Values: []float32{v}, Min: v, Max: v}
	}

	hm := tile.HeightMap{
		Resolution: resolution,
		Values:     make([]float32, resolution*resolution),
		Min:        math.MaxFloat32,
		Max:        -math.MaxFloat32,
	}
	bottomLeft := t.Bounds.BottomLeft()
	step := t.Size / float64(resolution-1)
	for y := range resolution {
		for x := range resolution {
			p := orb.Point{bottomLeft[0] + float64(x)*step, bottomLeft[1] + float64(y)*step}
			v := float32(fn(p))
			hm.Values[y*resolution+x] = v
			hm.Min = min(hm.Min, v)
			hm.Max = max(hm.Max, v)
		}
	}
	return hm
}
