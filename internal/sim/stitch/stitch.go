// Package stitch reconciles heights across detail-class boundaries so no
// crack is visible at any point of the population timeline. Rim vertices
// it pins are locked; relaxation must never move them.
package stitch

import (
	"math"

	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/tile"
)

type Config struct {
	RimRatio     float64 // fraction of radius beyond which a vertex is rim
	FeatherRatio float64 // band width as a fraction of radius
	LowBlend     float64 // corner blend weight against a coarse neighbor
}

// Source gives the stitcher access to the rest of the working set.
type Source interface {
	// TileAt returns the tile covering the coordinate, or nil.
	TileAt(c hex.Coord) *tile.Tile
}

// SideQuality classifies what this tile borders on one of its six sides.
type SideQuality uint8

const (
	SideMissing SideQuality = iota
	SideLow
	SideHigh
)

// neighborAcross returns the tile across side j. Side j runs between
// corner tips j and j+1; the facing neighbor is in hex direction j-1.
func neighborAcross(t *tile.Tile, src Source, j int) *tile.Tile {
	d := (j + 5) % 6
	n := src.TileAt(t.Coord.Neighbor(d))
	if n == t {
		return nil
	}
	return n
}

func classify(n *tile.Tile) SideQuality {
	if n == nil {
		return SideMissing
	}
	if n.Class == tile.ClassInteractive && n.EdgeDone && n.FullDone {
		return SideHigh
	}
	return SideLow
}

// Tile stitches all six sides of t against its current neighbors: corner
// correction, exact rim snap with locking, and the feather band.
func Tile(t *tile.Tile, src Source, cfg Config) {
	tips := t.TipIndices()

	// Pass 1: corner targets. Each corner is bounded by two sides; use the
	// better of the two side qualities when blending.
	corner := make([]float64, 6)
	for j := 0; j < 6; j++ {
		corner[j] = cornerTarget(t, src, cfg, tips, j)
	}
	for j := 0; j < 6; j++ {
		t.Heights[tips[j]] = corner[j]
		t.Lock(tips[j])
	}

	// Pass 2: rim snap + feather per side.
	for j := 0; j < 6; j++ {
		stitchSide(t, cfg, tips, corner, j)
	}
}

// cornerTarget blends the corner height toward what the adjacent surface
// says. A missing neighbor means the tile planarizes against itself, so a
// later arrival can stitch against a flat, predictable edge.
func cornerTarget(t *tile.Tile, src Source, cfg Config, tips []int, j int) float64 {
	cx, cz := t.VertexWorld(tips[j])
	own := t.Heights[tips[j]]

	best := SideMissing
	var sampled float64
	for _, side := range [2]int{(j + 5) % 6, j} {
		n := neighborAcross(t, src, side)
		q := classify(n)
		if q <= best || q == SideMissing {
			continue
		}
		if h, ok := n.SampleHeight(cx, cz); ok {
			best = q
			sampled = h
		}
	}

	switch best {
	case SideHigh:
		return sampled
	case SideLow:
		return own + (sampled-own)*cfg.LowBlend
	default:
		return own
	}
}

func stitchSide(t *tile.Tile, cfg Config, tips []int, corner []float64, j int) {
	a := tips[j]
	b := tips[(j+1)%6]
	ax, az := t.VertexWorld(a)
	bx, bz := t.VertexWorld(b)
	ha := corner[j]
	hb := corner[(j+1)%6]

	// Exact snap for true rim vertices along this side.
	for _, i := range t.SideIndices(j) {
		if i == a || i == b {
			continue
		}
		if t.DistFromCenter(i) < cfg.RimRatio*t.Radius {
			continue
		}
		u := segmentParam(t, i, ax, az, bx, bz)
		t.Heights[i] = ha + (hb-ha)*u
		t.Lock(i)
	}

	// Feather band: blend toward the same line with a smoothstep weight
	// that reaches one at the rim and zero at the band's inner edge.
	band := cfg.FeatherRatio * t.Radius
	if band <= 0 {
		return
	}
	for i := 0; i < t.VertexCount(); i++ {
		if t.Locked(i) {
			continue
		}
		u, d := segmentProject(t, i, ax, az, bx, bz)
		if u < 0 || u > 1 || d >= band {
			continue
		}
		w := smoothstep(1 - d/band)
		line := ha + (hb-ha)*u
		t.Heights[i] += (line - t.Heights[i]) * w
	}
}

func segmentParam(t *tile.Tile, i int, ax, az, bx, bz float64) float64 {
	u, _ := segmentProject(t, i, ax, az, bx, bz)
	return clamp01(u)
}

func segmentProject(t *tile.Tile, i int, ax, az, bx, bz float64) (u, dist float64) {
	px, pz := t.VertexWorld(i)
	vx, vz := bx-ax, bz-az
	wx, wz := px-ax, pz-az
	len2 := vx*vx + vz*vz
	if len2 == 0 {
		return 0, math.Hypot(wx, wz)
	}
	u = (wx*vx + wz*vz) / len2
	cx := ax + vx*clamp01(u)
	cz := az + vz*clamp01(u)
	return u, math.Hypot(px-cx, pz-cz)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func smoothstep(s float64) float64 {
	s = clamp01(s)
	return s * s * (3 - 2*s)
}
