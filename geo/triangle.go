package geo

import "github.com/paulmach/orb"

// InTriangle reports whether p lies inside triangle abc or on one of its edges.
// Vertex order does not matter.
func InTriangle(p, a, b, c orb.Point) bool {
	d1 := side(p, a, b)
	d2 := side(p, b, c)
	d3 := side(p, c, a)

	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func side(p, a, b orb.Point) float64 {
	return (p[0]-b[0])*(a[1]-b[1]) - (a[0]-b[0])*(p[1]-b[1])
}
