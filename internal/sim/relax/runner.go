package relax

import (
	"time"

	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/tile"
)

// Runner spreads diffusion across ticks under a wall-clock budget: a
// round-robin cursor walks the eligible tiles, doing as many as fit per
// tick and resuming where it left off, so per-frame cost stays bounded no
// matter how many tiles are mid-population.
type Runner struct {
	Budget      time.Duration
	SmoothIters int

	// Clock is injectable so tests can run without real time passing.
	Clock func() time.Time

	cursor int
}

func NewRunner(budget time.Duration, smoothIters int) *Runner {
	return &Runner{
		Budget:      budget,
		SmoothIters: smoothIters,
		Clock:       time.Now,
	}
}

// Tick processes eligible tiles until the budget is spent. The order slice
// must be stable between calls for the cursor to be meaningful; the
// streamer passes its sorted coordinate list.
func (r *Runner) Tick(order []hex.Coord, lookup func(hex.Coord) *tile.Tile) (processed int) {
	if len(order) == 0 {
		return 0
	}
	deadline := r.Clock().Add(r.Budget)
	if r.cursor >= len(order) {
		r.cursor = 0
	}
	for n := 0; n < len(order); n++ {
		i := (r.cursor + n) % len(order)
		t := lookup(order[i])
		if t == nil || t.UnreadyCount() == 0 {
			continue
		}
		Smooth(t, r.SmoothIters)
		processed++
		if r.Clock().After(deadline) {
			r.cursor = (i + 1) % len(order)
			return processed
		}
	}
	r.cursor = 0
	return processed
}
