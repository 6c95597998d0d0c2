package tile

import "math/bits"

func (t *Tile) Ready(i int) bool {
	return t.ready[i>>6]&(1<<(uint(i)&63)) != 0
}

func (t *Tile) Locked(i int) bool {
	return t.locked[i>>6]&(1<<(uint(i)&63)) != 0
}

// MarkReady records an authoritative height for vertex i: the readiness
// bit is set, any stitching/seeding pin is released, and the unready
// counter is kept consistent. Reports whether the vertex was newly ready.
func (t *Tile) MarkReady(i int, h float64) bool {
	t.Heights[i] = h
	t.Unlock(i)
	w, m := i>>6, uint64(1)<<(uint(i)&63)
	if t.ready[w]&m != 0 {
		return false
	}
	t.ready[w] |= m
	t.unready--
	return true
}

func (t *Tile) Lock(i int) {
	t.locked[i>>6] |= 1 << (uint(i) & 63)
}

func (t *Tile) Unlock(i int) {
	t.locked[i>>6] &^= 1 << (uint(i) & 63)
}

// RecountUnready recomputes the unready count straight from the bitmap.
// Used by invariant checks; the cached counter must always agree.
func (t *Tile) RecountUnready() int {
	n := 0
	for _, w := range t.ready {
		n += bits.OnesCount64(w)
	}
	return t.VertexCount() - n
}

// UnknownIndices returns all vertices with no authoritative height.
func (t *Tile) UnknownIndices() []int {
	out := make([]int, 0, t.unready)
	for i := 0; i < t.VertexCount(); i++ {
		if !t.Ready(i) {
			out = append(out, i)
		}
	}
	return out
}
