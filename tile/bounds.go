package tile

import (
	"github.com/eak1mov/go-tilestream/geo"
	"github.com/paulmach/orb"
)

// Bounds is the axis-aligned square covered by a tile.
type Bounds struct {
	bound orb.Bound
}

func NewBounds(center orb.Point, size float64) Bounds {
	h := size / 2
	return Bounds{orb.Bound{
		Min: orb.Point{center[0] - h, center[1] - h},
		Max: orb.Point{center[0] + h, center[1] + h},
	}}
}

func (b Bounds) Bound() orb.Bound       { return b.bound }
func (b Bounds) Center() orb.Point      { return b.bound.Center() }
func (b Bounds) TopLeft() orb.Point     { return orb.Point{b.bound.Min[0], b.bound.Max[1]} }
func (b Bounds) TopRight() orb.Point    { return b.bound.Max }
func (b Bounds) BottomLeft() orb.Point  { return b.bound.Min }
func (b Bounds) BottomRight() orb.Point { return orb.Point{b.bound.Max[0], b.bound.Min[1]} }

// Contains reports whether p is strictly inside the square shrunk by margin
// on every side. A negative margin grows the square.
func (b Bounds) Contains(p orb.Point, margin float64) bool {
	inner := b.bound.Pad(-margin)
	return p[0] > inner.Min[0] && p[0] < inner.Max[0] &&
		p[1] > inner.Min[1] && p[1] < inner.Max[1]
}

// Direction returns the side of the square p is heading to, judged by which
// of the four triangles spanned by the centre and two adjacent corners
// contains p. Triangles are tested top, left, right; bottom is the fallback,
// so a point on a shared diagonal resolves to the earlier side.
func (b Bounds) Direction(p orb.Point) Direction {
	c := b.Center()
	switch {
	case geo.InTriangle(p, c, b.TopLeft(), b.TopRight()):
		return Top
	case geo.InTriangle(p, c, b.TopLeft(), b.BottomLeft()):
		return Left
	case geo.InTriangle(p, c, b.TopRight(), b.BottomRight()):
		return Right
	}
	return Bottom
}
