// Package tile holds the per-tile terrain entity: heights, readiness
// bitmap, lock mask, adjacency, and the phased population state machine.
package tile

import (
	"hexelev.dev/internal/sim/hex"
)

// Class is the detail class of a tile.
type Class uint8

const (
	ClassInteractive Class = iota + 1
	ClassVisual
	ClassFarfield
)

func (c Class) String() string {
	switch c {
	case ClassInteractive:
		return "interactive"
	case ClassVisual:
		return "visual"
	case ClassFarfield:
		return "farfield"
	}
	return "unknown"
}

// SampleMode is the farfield sparse sampling mode.
type SampleMode uint8

const (
	SampleAll SampleMode = iota + 1
	SampleTips
	SampleCenter
)

func (m SampleMode) String() string {
	switch m {
	case SampleAll:
		return "all"
	case SampleTips:
		return "tips"
	case SampleCenter:
		return "center"
	}
	return "unknown"
}

// Phase is one population step. Interactive tiles walk Seed -> Edge ->
// Full; Visual and Farfield tiles have only Full.
type Phase uint8

const (
	PhaseSeed Phase = iota + 1
	PhaseEdge
	PhaseFull
)

func (p Phase) String() string {
	switch p {
	case PhaseSeed:
		return "seed"
	case PhaseEdge:
		return "edge"
	case PhaseFull:
		return "full"
	}
	return "unknown"
}

// Tile is the core entity. All mutation happens on the streamer's tick
// goroutine; none of this is safe for concurrent use.
type Tile struct {
	Coord   hex.Coord
	Class   Class
	Spacing float64 // meters between adjacent vertices
	Radius  float64 // meters, center to corner (already scaled for farfield)
	Scale   int     // farfield radius multiplier; 1 otherwise
	Mode    SampleMode

	CenterX, CenterZ float64

	Heights []float64
	ready   []uint64
	locked  []uint64
	unready int

	// Adj[i] lists the vertex indices adjacent to vertex i.
	Adj [][]int32

	// Interactive lattice bookkeeping.
	rings  int
	locals []hex.Coord

	SeedDone bool
	EdgeDone bool
	FullDone bool

	Retries      map[Phase]int
	Populating   bool
	FallbackUsed bool
}

func (t *Tile) VertexCount() int { return len(t.Heights) }

// UnreadyCount is the number of vertices with no authoritative height yet.
func (t *Tile) UnreadyCount() int { return t.unready }

// Rings reports the lattice ring count (0 for coarse tiles).
func (t *Tile) Rings() int { return t.rings }
