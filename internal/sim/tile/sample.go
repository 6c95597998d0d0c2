package tile

import (
	"math"

	"hexelev.dev/internal/sim/hex"
)

// SampleHeight interpolates the tile surface at a world position. This is
// the vertical-query primitive used by stitching, the public height query
// and physics collaborators. Returns false when the point falls outside
// the tile's vertex coverage.
func (t *Tile) SampleHeight(x, z float64) (float64, bool) {
	if t.locals != nil {
		return t.sampleLattice(x, z)
	}
	return t.sampleFan(x, z)
}

// sampleLattice does barycentric interpolation on the triangular vertex
// lattice of an Interactive tile.
func (t *Tile) sampleLattice(x, z float64) (float64, bool) {
	dx := x - t.CenterX
	dz := z - t.CenterZ
	// Inverse of hex.LatticeOffset.
	r := 2 * dz / (t.Spacing * math.Sqrt(3))
	q := dx/t.Spacing - r/2

	q0 := math.Floor(q)
	r0 := math.Floor(r)
	fq := q - q0
	fr := r - r0

	type wv struct {
		c hex.Coord
		w float64
	}
	var tri [3]wv
	base := hex.Coord{Q: int(q0), R: int(r0)}
	if fq+fr <= 1 {
		tri[0] = wv{base, 1 - fq - fr}
		tri[1] = wv{base.Add(hex.Coord{Q: 1}), fq}
		tri[2] = wv{base.Add(hex.Coord{R: 1}), fr}
	} else {
		tri[0] = wv{base.Add(hex.Coord{Q: 1, R: 1}), fq + fr - 1}
		tri[1] = wv{base.Add(hex.Coord{R: 1}), 1 - fq}
		tri[2] = wv{base.Add(hex.Coord{Q: 1}), 1 - fr}
	}

	h := 0.0
	for _, v := range tri {
		if hex.Dist(hex.Coord{}, v.c) > t.rings {
			return 0, false
		}
		h += v.w * t.Heights[t.latticeIndex(v.c)]
	}
	return h, true
}

func (t *Tile) latticeIndex(c hex.Coord) int {
	// locals is ring-ordered; indices within a ring follow hex.Ring order.
	d := hex.Dist(hex.Coord{}, c)
	if d == 0 {
		return 0
	}
	ring := hex.Ring(hex.Coord{}, d)
	for i, rc := range ring {
		if rc == c {
			return ringStart(d) + i
		}
	}
	return 0
}

// sampleFan interpolates a coarse tile as six triangles around the center.
func (t *Tile) sampleFan(x, z float64) (float64, bool) {
	px := x - t.CenterX
	pz := z - t.CenterZ
	if math.Hypot(px, pz) > t.Radius*1.0001 {
		return 0, false
	}
	for i := 1; i <= 6; i++ {
		j := 1 + i%6
		ax, az := t.VertexWorld(i)
		bx, bz := t.VertexWorld(j)
		ax -= t.CenterX
		az -= t.CenterZ
		bx -= t.CenterX
		bz -= t.CenterZ
		w0, w1, w2, ok := barycentric(px, pz, 0, 0, ax, az, bx, bz)
		if !ok {
			continue
		}
		return w0*t.Heights[0] + w1*t.Heights[i] + w2*t.Heights[j], true
	}
	return 0, false
}

func barycentric(px, pz, ax, az, bx, bz, cx, cz float64) (w0, w1, w2 float64, ok bool) {
	v0x, v0z := bx-ax, bz-az
	v1x, v1z := cx-ax, cz-az
	v2x, v2z := px-ax, pz-az
	den := v0x*v1z - v1x*v0z
	if math.Abs(den) < 1e-12 {
		return 0, 0, 0, false
	}
	w1 = (v2x*v1z - v1x*v2z) / den
	w2 = (v0x*v2z - v2x*v0z) / den
	w0 = 1 - w1 - w2
	const eps = -1e-9
	if w0 < eps || w1 < eps || w2 < eps {
		return 0, 0, 0, false
	}
	return w0, w1, w2, true
}
