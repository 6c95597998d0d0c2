// Package relax fills unknown vertex heights so a partially-populated
// tile renders sensibly while fetches are in flight. Ready and locked
// vertices are never touched.
package relax

import (
	"hexelev.dev/internal/sim/tile"
)

// AnchorFill propagates breadth-first from every ready-or-locked vertex;
// each unknown vertex inherits the height of its nearest anchor in graph
// distance. Run once per phase transition as a coarse fallback.
func AnchorFill(t *tile.Tile) {
	n := t.VertexCount()
	queue := make([]int32, 0, n)
	visited := make([]bool, n)

	for i := 0; i < n; i++ {
		if t.Ready(i) || t.Locked(i) {
			visited[i] = true
			queue = append(queue, int32(i))
		}
	}
	if len(queue) == 0 || len(queue) == n {
		return
	}

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range t.Adj[i] {
			if visited[j] {
				continue
			}
			visited[j] = true
			t.Heights[j] = t.Heights[i]
			queue = append(queue, j)
		}
	}
}

// Smooth runs iterative local averaging over unknown vertices: each gets
// the mean of its neighbors' current heights. Double-buffered so the
// result does not depend on vertex order.
func Smooth(t *tile.Tile, iters int) {
	n := t.VertexCount()
	if iters <= 0 || t.UnreadyCount() == 0 {
		return
	}
	cur := t.Heights
	next := make([]float64, n)

	for it := 0; it < iters; it++ {
		copy(next, cur)
		for i := 0; i < n; i++ {
			if t.Ready(i) || t.Locked(i) {
				continue
			}
			sum := 0.0
			for _, j := range t.Adj[i] {
				sum += cur[j]
			}
			if len(t.Adj[i]) > 0 {
				next[i] = sum / float64(len(t.Adj[i]))
			}
		}
		cur, next = next, cur
	}
	if &cur[0] != &t.Heights[0] {
		copy(t.Heights, cur)
	}
}
