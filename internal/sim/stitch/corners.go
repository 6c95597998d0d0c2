package stitch

import (
	"hexelev.dev/internal/sim/tile"
)

// cornerPriority orders candidates for a shared corner height. The
// ordering is empirical: coarse-but-complete surfaces give steadier
// corners than an interactive tile mid-population.
func cornerPriority(t *tile.Tile) int {
	switch t.Class {
	case tile.ClassVisual:
		return 4
	case tile.ClassFarfield:
		return 3
	case tile.ClassInteractive:
		if !t.FullDone {
			return 2
		}
		return 1
	}
	return 0
}

// Corners harmonizes each corner tip of t with the two neighbors sharing
// it: the highest-priority candidate's height is written into every tile
// that has a vertex at the shared point.
func Corners(t *tile.Tile, src Source) {
	tips := t.TipIndices()
	for j := 0; j < 6; j++ {
		cx, cz := t.VertexWorld(tips[j])

		best := t
		bestIdx := tips[j]
		bestPri := cornerPriority(t)

		// The two neighbors sharing corner j sit across sides j-1 and j.
		share := []*tile.Tile{
			neighborAcross(t, src, (j+5)%6),
			neighborAcross(t, src, j),
		}
		holders := []*tile.Tile{t}
		holderIdx := []int{tips[j]}
		for _, n := range share {
			if n == nil {
				continue
			}
			idx, ok := cornerVertexAt(n, cx, cz)
			if !ok {
				continue
			}
			holders = append(holders, n)
			holderIdx = append(holderIdx, idx)
			if p := cornerPriority(n); p > bestPri {
				bestPri = p
				best = n
				bestIdx = idx
			}
		}
		if len(holders) < 2 {
			continue
		}
		h := best.Heights[bestIdx]
		for k, n := range holders {
			n.Heights[holderIdx[k]] = h
			n.Lock(holderIdx[k])
		}
	}
}

// cornerVertexAt finds a corner-tip vertex of n at the world point, with
// tolerance scaled to the tile's spacing. Farfield tiles at a larger
// scale may not have a vertex there at all.
func cornerVertexAt(n *tile.Tile, x, z float64) (int, bool) {
	tol := n.Spacing * 0.25
	if tol <= 0 {
		tol = 0.5
	}
	for _, i := range n.TipIndices() {
		vx, vz := n.VertexWorld(i)
		dx, dz := vx-x, vz-z
		if dx*dx+dz*dz <= tol*tol {
			return i, true
		}
	}
	return 0, false
}
