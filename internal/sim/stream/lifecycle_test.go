package stream

import (
	"testing"
	"time"

	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/tile"
	"hexelev.dev/internal/sim/tuning"
)

// smallRings keeps lifecycle walks cheap: interactive 1, visual 2,
// farfield 4, so the tier width collapses to 1.
func smallRings() tuning.Tuning {
	tune := tuning.Defaults()
	tune.Rings.InteractiveRadius = 1
	tune.Rings.VisualRadius = 2
	tune.Rings.FarfieldRadius = 4
	tune.Budgets.LifecycleMs = 1000
	return tune
}

func TestDesiredAtTierProgression(t *testing.T) {
	s := newTestStreamer(tuning.Defaults()) // interactive 2, visual 5, farfield 13

	cases := []struct {
		d     int
		class tile.Class
		scale int
		mode  tile.SampleMode
	}{
		{0, tile.ClassInteractive, 1, tile.SampleAll},
		{2, tile.ClassInteractive, 1, tile.SampleAll},
		{3, tile.ClassVisual, 1, tile.SampleAll},
		{5, tile.ClassVisual, 1, tile.SampleAll},
		{6, tile.ClassFarfield, 1, tile.SampleAll},
		{8, tile.ClassFarfield, 2, tile.SampleTips},
		{12, tile.ClassFarfield, 4, tile.SampleCenter},
		{13, tile.ClassFarfield, 4, tile.SampleCenter},
	}
	for _, c := range cases {
		sp, ok := s.desiredAt(c.d)
		if !ok {
			t.Fatalf("desiredAt(%d) not ok", c.d)
		}
		if sp.class != c.class || sp.scale != c.scale || sp.mode != c.mode {
			t.Fatalf("desiredAt(%d) = %+v, want class=%v scale=%d mode=%v", c.d, sp, c.class, c.scale, c.mode)
		}
	}
	if _, ok := s.desiredAt(14); ok {
		t.Fatalf("distance past the farfield radius still wants a tile")
	}
}

func TestStrideSnapping(t *testing.T) {
	s := newTestStreamer(tuning.Defaults())

	if got := snapCoord(hex.Coord{Q: 5, R: -3}, 2); got != (hex.Coord{Q: 4, R: -4}) {
		t.Fatalf("snap(5,-3 @2) = %v", got)
	}
	if got := snapCoord(hex.Coord{Q: -1, R: -1}, 4); got != (hex.Coord{Q: -4, R: -4}) {
		t.Fatalf("snap(-1,-1 @4) = %v", got)
	}
	if got := snapCoord(hex.Coord{Q: 6, R: 2}, 1); got != (hex.Coord{Q: 6, R: 2}) {
		t.Fatalf("stride 1 must not move the coordinate")
	}

	if s.strideFor(4) != 1 || s.strideFor(8) != 2 || s.strideFor(12) != 4 {
		t.Fatalf("strides = %d/%d/%d", s.strideFor(4), s.strideFor(8), s.strideFor(12))
	}
}

func TestLifecyclePopulatesRings(t *testing.T) {
	s := newTestStreamer(smallRings())
	s.lifecycle(time.Now())

	center := s.tiles[hex.Coord{}]
	if center == nil || center.Class != tile.ClassInteractive {
		t.Fatalf("no interactive tile under the observer")
	}
	for _, n := range (hex.Coord{}).Neighbors() {
		if tl := s.tiles[n]; tl == nil || tl.Class != tile.ClassInteractive {
			t.Fatalf("ring-1 tile %v = %v", n, tl)
		}
	}
	if tl := s.tiles[hex.Coord{Q: 0, R: 2}]; tl == nil || tl.Class != tile.ClassVisual {
		t.Fatalf("ring-2 tile missing or wrong class: %v", tl)
	}
	if tl := s.tiles[hex.Coord{Q: 0, R: 3}]; tl == nil || tl.Class != tile.ClassFarfield || tl.Scale != 1 {
		t.Fatalf("tier-0 farfield tile: %v", tl)
	}
	// Tier 1 owns stride-2 coordinates only.
	if tl := s.tiles[hex.Coord{Q: 4, R: 0}]; tl == nil || tl.Mode != tile.SampleTips || tl.Scale != 2 {
		t.Fatalf("tier-1 owner tile: %+v", tl)
	}
	if s.tiles[hex.Coord{Q: 3, R: 1}] != nil {
		t.Fatalf("unaligned tier-1 coordinate got its own tile")
	}
	for c := range s.tiles {
		if hex.Dist(s.observer, c) > s.cfg.Rings.FarfieldRadius {
			t.Fatalf("tile %v beyond the farfield radius", c)
		}
	}
}

func TestHysteresisHoldsThenDemotes(t *testing.T) {
	s := newTestStreamer(smallRings())
	s.lifecycle(time.Now())

	c := hex.Coord{Q: 0, R: 1}
	if s.tiles[c].Class != tile.ClassInteractive {
		t.Fatalf("setup: %v not interactive", c)
	}

	// One step away: desired class drops to visual but the margin holds.
	s.observer = hex.Coord{Q: 0, R: -1}
	s.predicted = s.observer
	s.rebuildOrder()
	s.lifecycle(time.Now())
	if s.tiles[c].Class != tile.ClassInteractive {
		t.Fatalf("hysteresis margin did not hold the interactive tile")
	}

	// Past the margin the tile is rebuilt at the coarser class.
	s.observer = hex.Coord{Q: 0, R: -2}
	s.predicted = s.observer
	s.rebuildOrder()
	s.lifecycle(time.Now())
	if got := s.tiles[c].Class; got != tile.ClassFarfield {
		t.Fatalf("tile at dist 3 = %v, want farfield", got)
	}
}

func TestEvictionBeyondMargin(t *testing.T) {
	s := newTestStreamer(smallRings())
	s.lifecycle(time.Now())

	far := hex.Coord{Q: 0, R: 4}
	if s.tiles[far] == nil {
		t.Fatalf("setup: no tile at the farfield rim")
	}
	s.observer = hex.Coord{Q: 0, R: -2}
	s.predicted = s.observer
	s.rebuildOrder()
	s.lifecycle(time.Now())
	if s.tiles[far] != nil {
		t.Fatalf("tile at dist 6 survived eviction (margin 1, radius 4)")
	}
	if s.metrics.TilesEvicted == 0 {
		t.Fatalf("eviction not counted")
	}
}

func TestPromotionSeedsFromOldSurface(t *testing.T) {
	s := newTestStreamer(smallRings())
	c := hex.Coord{Q: 1}
	cx, cz := hex.Center(c, s.cfg.Rings.TileRadius)
	old := tile.NewCoarse(tile.ClassVisual, c, s.cfg.Rings.TileRadius, cx, cz, 1, tile.SampleAll)
	for i := 0; i < old.VertexCount(); i++ {
		old.MarkReady(i, 50)
	}
	s.tiles[c] = old

	s.ensureTile(c, spec{class: tile.ClassInteractive, scale: 1, mode: tile.SampleAll})
	nt := s.tiles[c]
	if nt.Class != tile.ClassInteractive {
		t.Fatalf("promotion produced %v", nt.Class)
	}
	if s.metrics.Promotions != 1 {
		t.Fatalf("promotions = %d", s.metrics.Promotions)
	}
	if !nt.Locked(0) || nt.Heights[0] != 50 {
		t.Fatalf("center seed = %f locked=%v, want pinned 50", nt.Heights[0], nt.Locked(0))
	}
	// Seeds are provisional: none count as ready, so fetching proceeds.
	if nt.UnreadyCount() != nt.VertexCount() {
		t.Fatalf("seeded vertices marked ready")
	}
}

func TestFallbackTileNotChurnedByLifecycle(t *testing.T) {
	s := newTestStreamer(smallRings())
	s.lifecycle(time.Now())

	c := hex.Coord{Q: 4, R: 0} // tier-1 owner: tips mode, scale 2
	tl := s.tiles[c]
	if tl == nil || tl.Mode != tile.SampleTips {
		t.Fatalf("setup: %+v", tl)
	}
	// Simulate the fetch fallback replacing it with a dense tile.
	s.ensureTile(c, spec{class: tile.ClassFarfield, scale: 2, mode: tile.SampleAll})
	s.tiles[c].FallbackUsed = true
	created := s.metrics.TilesCreated

	s.lifecycle(time.Now())
	if s.tiles[c].Mode != tile.SampleAll || !s.tiles[c].FallbackUsed {
		t.Fatalf("lifecycle rebuilt the fallback tile")
	}
	if s.metrics.TilesCreated != created {
		t.Fatalf("lifecycle churned tiles: %d -> %d", created, s.metrics.TilesCreated)
	}
}

func TestTileAtWalksStrideTiers(t *testing.T) {
	s := newTestStreamer(tuning.Defaults())
	owner := hex.Coord{Q: 4, R: 0}
	addFarfield(s, owner, 2, tile.SampleTips)

	if got := s.TileAt(hex.Coord{Q: 5, R: 1}); got == nil || got.Coord != owner {
		t.Fatalf("stride walk missed the owner: %v", got)
	}
	if got := s.TileAt(hex.Coord{Q: 9, R: 9}); got != nil {
		t.Fatalf("uncovered coordinate resolved to %v", got.Coord)
	}
}
