// Package hex provides axial-coordinate addressing for the hex tile grid.
// The third cube coordinate is implicit: s = -q - r.
package hex

import (
	"math"
	"sort"
)

type Coord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Six neighbor offsets, counter-clockwise starting at +Q.
var Directions = [6]Coord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

func (c Coord) S() int { return -c.Q - c.R }

func (c Coord) Add(o Coord) Coord { return Coord{Q: c.Q + o.Q, R: c.R + o.R} }

func (c Coord) Neighbor(dir int) Coord { return c.Add(Directions[mod6(dir)]) }

func (c Coord) Neighbors() [6]Coord {
	var out [6]Coord
	for i, d := range Directions {
		out[i] = c.Add(d)
	}
	return out
}

func mod6(i int) int {
	i %= 6
	if i < 0 {
		i += 6
	}
	return i
}

// Dist is the cube (hex-step) distance between two coordinates.
func Dist(a, b Coord) int {
	dq := a.Q - b.Q
	dr := a.R - b.R
	ds := a.S() - b.S()
	return (abs(dq) + abs(dr) + abs(ds)) / 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Ring returns the coordinates at exactly radius steps from center,
// walking the six sides. Ring(c, 0) is just the center.
func Ring(center Coord, radius int) []Coord {
	if radius <= 0 {
		return []Coord{center}
	}
	out := make([]Coord, 0, 6*radius)
	// Start at the corner in direction 4, then walk each side.
	c := center
	for i := 0; i < radius; i++ {
		c = c.Add(Directions[4])
	}
	for side := 0; side < 6; side++ {
		for step := 0; step < radius; step++ {
			out = append(out, c)
			c = c.Add(Directions[side])
		}
	}
	return out
}

// Disc returns all coordinates within radius steps of center, ordered
// ring by ring from the center outward.
func Disc(center Coord, radius int) []Coord {
	out := make([]Coord, 0, 1+3*radius*(radius+1))
	out = append(out, center)
	for r := 1; r <= radius; r++ {
		out = append(out, Ring(center, r)...)
	}
	return out
}

// SortByDist orders coords by hex distance from center ascending, with a
// stable q/r tiebreak so enumeration is deterministic.
func SortByDist(center Coord, coords []Coord) {
	sort.Slice(coords, func(i, j int) bool {
		di, dj := Dist(center, coords[i]), Dist(center, coords[j])
		if di != dj {
			return di < dj
		}
		if coords[i].Q != coords[j].Q {
			return coords[i].Q < coords[j].Q
		}
		return coords[i].R < coords[j].R
	})
}

// Center maps a tile coordinate to its world-space center for flat-top
// hexes of circumradius size. Flat-top orientation matches the vertex
// lattice, so corner tips land on shared points between three tiles.
func Center(c Coord, size float64) (x, z float64) {
	x = size * 1.5 * float64(c.Q)
	z = size * math.Sqrt(3) * (float64(c.R) + float64(c.Q)/2)
	return x, z
}

// FromWorld maps a world position to the containing tile coordinate
// (inverse of Center, with cube rounding).
func FromWorld(x, z, size float64) Coord {
	q := (2.0 / 3 * x) / size
	r := (-x/3 + math.Sqrt(3)/3*z) / size
	return roundAxial(q, r)
}

func roundAxial(q, r float64) Coord {
	s := -q - r
	rq := math.Round(q)
	rr := math.Round(r)
	rs := math.Round(s)
	dq := math.Abs(rq - q)
	dr := math.Abs(rr - r)
	ds := math.Abs(rs - s)
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return Coord{Q: int(rq), R: int(rr)}
}

// LatticeOffset maps a vertex-lattice axial offset to a local world offset
// where every neighbor pair is exactly spacing apart (triangular lattice).
func LatticeOffset(c Coord, spacing float64) (dx, dz float64) {
	dx = spacing * (float64(c.Q) + float64(c.R)/2)
	dz = spacing * math.Sqrt(3) / 2 * float64(c.R)
	return dx, dz
}
