// Package geo converts between geographic coordinates and the local planar
// system tiles are laid out in.
//
// The plane is anchored at a relative origin: the origin maps to (0, 0), X grows
// to the east and Y grows to the north. Units are approximately metres near the
// origin.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point returns the coordinate as an orb point (lon, lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Valid reports whether c is finite, strictly between the poles and has a
// longitude in [-180, 180].
func (c Coordinate) Valid() bool {
	return c.Lat > -90 && c.Lat < 90 && c.Lon >= -180 && c.Lon <= 180
}

func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// ToPlanar projects c onto the plane anchored at origin.
func ToPlanar(origin, c Coordinate) orb.Point {
	o := project.WGS84.ToMercator(origin.Point())
	m := project.WGS84.ToMercator(c.Point())
	k := scale(origin)
	return orb.Point{(m[0] - o[0]) * k, (m[1] - o[1]) * k}
}

// ToCoordinate is the inverse of ToPlanar.
func ToCoordinate(origin Coordinate, p orb.Point) Coordinate {
	o := project.WGS84.ToMercator(origin.Point())
	k := scale(origin)
	m := orb.Point{o[0] + p[0]/k, o[1] + p[1]/k}
	return FromPoint(project.Mercator.ToWGS84(m))
}

// scale converts web mercator metres to ground metres at the origin latitude.
func scale(origin Coordinate) float64 {
	return math.Cos(origin.Lat * math.Pi / 180)
}
