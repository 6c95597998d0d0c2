package tile

import (
	"math"

	"hexelev.dev/internal/sim/hex"
)

// NewInteractive builds a full-resolution tile: a triangular lattice of
// vertices ring-ordered from the center, radius/spacing rings deep.
func NewInteractive(c hex.Coord, spacing, radius, centerX, centerZ float64) *Tile {
	rings := int(math.Round(radius / spacing))
	if rings < 1 {
		rings = 1
	}
	locals := hex.Disc(hex.Coord{}, rings)
	n := len(locals)

	t := &Tile{
		Coord:   c,
		Class:   ClassInteractive,
		Spacing: spacing,
		Radius:  float64(rings) * spacing,
		Scale:   1,
		Mode:    SampleAll,
		CenterX: centerX,
		CenterZ: centerZ,
		Heights: make([]float64, n),
		ready:   make([]uint64, (n+63)/64),
		locked:  make([]uint64, (n+63)/64),
		unready: n,
		rings:   rings,
		locals:  locals,
		Retries: map[Phase]int{},
	}
	t.Adj = latticeAdjacency(locals)
	return t
}

// NewCoarse builds a 7-vertex tile (center + six corner tips) for the
// Visual and Farfield classes. Radius is the scaled circumradius.
func NewCoarse(class Class, c hex.Coord, radius, centerX, centerZ float64, scale int, mode SampleMode) *Tile {
	if scale < 1 {
		scale = 1
	}
	t := &Tile{
		Coord:   c,
		Class:   class,
		Spacing: radius, // sample-to-sample distance is on the order of the radius
		Radius:  radius,
		Scale:   scale,
		Mode:    mode,
		CenterX: centerX,
		CenterZ: centerZ,
		Heights: make([]float64, 7),
		ready:   make([]uint64, 1),
		locked:  make([]uint64, 1),
		unready: 7,
		Retries: map[Phase]int{},
	}
	// Center touches every tip; tips form a cycle.
	t.Adj = make([][]int32, 7)
	t.Adj[0] = []int32{1, 2, 3, 4, 5, 6}
	for i := 1; i <= 6; i++ {
		prev := 1 + wrap6(i-2)
		next := 1 + wrap6(i)
		t.Adj[i] = []int32{0, int32(prev), int32(next)}
	}
	return t
}

func wrap6(i int) int {
	i %= 6
	if i < 0 {
		i += 6
	}
	return i
}

func latticeAdjacency(locals []hex.Coord) [][]int32 {
	index := make(map[hex.Coord]int32, len(locals))
	for i, c := range locals {
		index[c] = int32(i)
	}
	adj := make([][]int32, len(locals))
	for i, c := range locals {
		for _, n := range c.Neighbors() {
			if j, ok := index[n]; ok {
				adj[i] = append(adj[i], j)
			}
		}
	}
	return adj
}

// VertexWorld returns the world-space position of vertex i.
func (t *Tile) VertexWorld(i int) (x, z float64) {
	if t.locals != nil {
		dx, dz := hex.LatticeOffset(t.locals[i], t.Spacing)
		return t.CenterX + dx, t.CenterZ + dz
	}
	if i == 0 {
		return t.CenterX, t.CenterZ
	}
	// Flat-top corners, starting at the same corner the lattice ring walk
	// starts at (lattice direction 4) so tip ordering matches Interactive.
	theta := 2*math.Pi/3 - float64(i-1)*math.Pi/3
	return t.CenterX + t.Radius*math.Cos(theta), t.CenterZ + t.Radius*math.Sin(theta)
}

// ringStart is the index of the first vertex of lattice ring k.
func ringStart(k int) int {
	if k <= 0 {
		return 0
	}
	return 1 + 3*k*(k-1)
}

// TipIndices returns the six corner-tip vertices, one per corner.
func (t *Tile) TipIndices() []int {
	if t.locals == nil {
		return []int{1, 2, 3, 4, 5, 6}
	}
	start := ringStart(t.rings)
	out := make([]int, 6)
	for j := 0; j < 6; j++ {
		out[j] = start + j*t.rings
	}
	return out
}

// SideMidIndices returns the six side-midpoint vertices of the outer ring.
// With an odd ring count the midpoint rounds toward the lower corner.
func (t *Tile) SideMidIndices() []int {
	if t.locals == nil {
		return nil
	}
	start := ringStart(t.rings)
	out := make([]int, 6)
	for j := 0; j < 6; j++ {
		out[j] = start + j*t.rings + t.rings/2
	}
	return out
}

// SideIndices returns the outer-ring vertex run for side j, inclusive of
// both bounding corner tips.
func (t *Tile) SideIndices(j int) []int {
	j = wrap6(j)
	if t.locals == nil {
		return []int{1 + j, 1 + wrap6(j+1)}
	}
	start := ringStart(t.rings)
	ringLen := 6 * t.rings
	out := make([]int, 0, t.rings+1)
	for k := 0; k <= t.rings; k++ {
		out = append(out, start+(j*t.rings+k)%ringLen)
	}
	return out
}

// DistFromCenter is the planar distance of vertex i from the tile center.
func (t *Tile) DistFromCenter(i int) float64 {
	x, z := t.VertexWorld(i)
	return math.Hypot(x-t.CenterX, z-t.CenterZ)
}
