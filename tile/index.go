package tile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Index identifies a tile on the infinite square grid.
type Index struct {
	I int32 `json:"i"`
	J int32 `json:"j"`
}

// IndexAt returns the index of the tile containing p for the given tile size.
//
// Coordinates are rounded half up (floor(v/size + 0.5)), so the tile with
// index i spans [(i-0.5)*size, (i+0.5)*size) on each axis.
func IndexAt(p orb.Point, size float64) Index {
	return Index{I: roundHalfUp(p[0] / size), J: roundHalfUp(p[1] / size)}
}

func roundHalfUp(v float64) int32 {
	return int32(math.Floor(v + 0.5))
}

// MaxIndex bounds |I| and |J| of indexable tiles, leaving room for their
// neighbors in int32.
const MaxIndex = math.MaxInt32 - 1

// Indexable reports whether IndexAt(p, size) is well defined: p is finite and
// its tile lies within MaxIndex on both axes.
func Indexable(p orb.Point, size float64) bool {
	for _, v := range p {
		r := math.Floor(v/size + 0.5)
		if math.IsNaN(r) || math.Abs(r) > MaxIndex {
			return false
		}
	}
	return true
}

// Center returns the planar centre of the tile.
func (idx Index) Center(size float64) orb.Point {
	return orb.Point{float64(idx.I) * size, float64(idx.J) * size}
}

// Key packs the index into a single map key: I in the high 32 bits, J in the low.
func (idx Index) Key() uint64 {
	return uint64(uint32(idx.I))<<32 | uint64(uint32(idx.J))
}

// IndexFromKey is the inverse of Key.
func IndexFromKey(key uint64) Index {
	return Index{I: int32(uint32(key >> 32)), J: int32(uint32(key))}
}

// Manhattan returns |ΔI| + |ΔJ|.
func (idx Index) Manhattan(other Index) int {
	return abs(int(idx.I)-int(other.I)) + abs(int(idx.J)-int(other.J))
}

func (idx Index) Neighbor(d Direction) Index {
	di, dj := d.Offset()
	return Index{I: idx.I + di, J: idx.J + dj}
}

// Behind returns the three tiles on the side opposite to d: the direct
// neighbor in the opposite direction and its two neighbors across the move.
func (idx Index) Behind(d Direction) [3]Index {
	i, j := idx.I, idx.J
	switch d {
	case Top:
		return [3]Index{{i, j - 1}, {i - 1, j - 1}, {i + 1, j - 1}}
	case Left:
		return [3]Index{{i + 1, j}, {i + 1, j + 1}, {i + 1, j - 1}}
	case Right:
		return [3]Index{{i - 1, j}, {i - 1, j + 1}, {i - 1, j - 1}}
	default:
		return [3]Index{{i, j + 1}, {i - 1, j + 1}, {i + 1, j + 1}}
	}
}

func (idx Index) String() string {
	return fmt.Sprintf("(%d,%d)", idx.I, idx.J)
}

// Compare orders indices by I, then J.
func Compare(a, b Index) int {
	switch {
	case a.I < b.I:
		return -1
	case a.I > b.I:
		return 1
	case a.J < b.J:
		return -1
	case a.J > b.J:
		return 1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Direction is a side of a tile. Top is +Y.
type Direction uint8

const (
	Top Direction = iota
	Left
	Right
	Bottom
)

func (d Direction) Offset() (di, dj int32) {
	switch d {
	case Top:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	default:
		return 0, -1
	}
}

func (d Direction) String() string {
	switch d {
	case Top:
		return "top"
	case Left:
		return "left"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}
