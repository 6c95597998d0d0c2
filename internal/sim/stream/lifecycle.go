package stream

import (
	"time"

	"hexelev.dev/internal/sim/hex"
	"hexelev.dev/internal/sim/tile"
)

// spec describes the tile a coordinate should hold: detail class plus
// the farfield tier parameters.
type spec struct {
	class tile.Class
	scale int
	mode  tile.SampleMode
}

func (s *Streamer) tierWidth() int {
	w := (s.cfg.Rings.FarfieldRadius - s.cfg.Rings.VisualRadius) / 3
	if w < 1 {
		w = 1
	}
	return w
}

// desiredAt maps hex distance from the observer to the wanted tile spec.
// ok is false beyond the farfield radius.
func (s *Streamer) desiredAt(d int) (spec, bool) {
	r := s.cfg.Rings
	switch {
	case d <= r.InteractiveRadius:
		return spec{class: tile.ClassInteractive, scale: 1, mode: tile.SampleAll}, true
	case d <= r.VisualRadius:
		return spec{class: tile.ClassVisual, scale: 1, mode: tile.SampleAll}, true
	case d <= r.FarfieldRadius:
		tier := (d - r.VisualRadius - 1) / s.tierWidth()
		if tier > 2 {
			tier = 2
		}
		sp := spec{class: tile.ClassFarfield, scale: 1, mode: tile.SampleAll}
		for i := 0; i < tier; i++ {
			sp.scale *= max(2, r.FarfieldScaleStep)
		}
		switch tier {
		case 1:
			sp.mode = tile.SampleTips
		case 2:
			sp.mode = tile.SampleCenter
		}
		return sp, true
	}
	return spec{}, false
}

func matches(t *tile.Tile, sp spec) bool {
	return t.Class == sp.class && t.Scale == sp.scale && t.Mode == sp.mode
}

// effectiveDist measures from the observer or from the predicted
// position ahead of travel, whichever is nearer, so tiles along the
// direction of motion are created early and kept longer.
func (s *Streamer) effectiveDist(c hex.Coord) int {
	d := hex.Dist(s.observer, c)
	if s.predicted != s.observer {
		if pd := hex.Dist(s.predicted, c); pd < d {
			d = pd
		}
	}
	return d
}

// strideFor returns the coordinate stride of the farfield tier owning
// distance d (1 inside the visual ring).
func (s *Streamer) strideFor(d int) int {
	r := s.cfg.Rings
	if d <= r.VisualRadius {
		return 1
	}
	tier := (d - r.VisualRadius - 1) / s.tierWidth()
	if tier > 2 {
		tier = 2
	}
	stride := 1
	for i := 0; i < tier; i++ {
		stride *= max(2, r.FarfieldStride)
	}
	return stride
}

func modInt(v, m int) int {
	v %= m
	if v < 0 {
		v += m
	}
	return v
}

func snapCoord(c hex.Coord, stride int) hex.Coord {
	if stride <= 1 {
		return c
	}
	return hex.Coord{Q: c.Q - modInt(c.Q, stride), R: c.R - modInt(c.R, stride)}
}

// lifecycle maintains the three rings around the observer under a
// wall-clock budget; unfinished work resumes next tick.
func (s *Streamer) lifecycle(now time.Time) {
	deadline := now.Add(time.Duration(s.cfg.Budgets.LifecycleMs) * time.Millisecond)
	changed := false

	coords := hex.Disc(s.observer, s.cfg.Rings.FarfieldRadius)
	if s.predicted != s.observer {
		coords = append(coords, hex.Disc(s.predicted, s.cfg.Rings.InteractiveRadius)...)
	}
	for i, c := range coords {
		if i%64 == 63 && s.Clock().After(deadline) {
			break
		}
		d := s.effectiveDist(c)
		sp, ok := s.desiredAt(d)
		if !ok {
			continue
		}
		// Farfield coordinates not aligned to their tier's stride are
		// covered by the snapped owner tile.
		if sp.class == tile.ClassFarfield {
			if owner := snapCoord(c, s.strideFor(d)); owner != c {
				continue
			}
		}
		if t, exists := s.tiles[c]; exists {
			if matches(t, sp) {
				continue
			}
			// A fallback replacement deliberately differs from the tier
			// spec; leave it until its class stops fitting.
			if t.FallbackUsed && t.Class == sp.class {
				continue
			}
			// Hysteresis: a tile still matching the finer spec it held
			// within the margin is left alone. Promotion is immediate.
			if t.Class <= sp.class {
				relaxed := d - s.cfg.Rings.HysteresisMargin
				if relaxed < 0 {
					relaxed = 0
				}
				if rsp, rok := s.desiredAt(relaxed); rok && matches(t, rsp) {
					continue
				}
			}
		}
		s.ensureTile(c, sp)
		changed = true
	}

	// Demotion and eviction sweep over what exists.
	evictAt := s.cfg.Rings.FarfieldRadius + s.cfg.Rings.HysteresisMargin
	for c, t := range s.tiles {
		d := s.effectiveDist(c)
		if d > evictAt {
			s.evict(c)
			changed = true
			continue
		}
		sp, ok := s.desiredAt(d)
		if !ok || matches(t, sp) {
			continue
		}
		if t.Class < sp.class { // finer than needed: demote past the margin only
			relaxed := d - s.cfg.Rings.HysteresisMargin
			if relaxed < 0 {
				relaxed = 0
			}
			if rsp, rok := s.desiredAt(relaxed); rok && matches(t, rsp) {
				continue
			}
			s.metrics.Demotions++
			s.ensureTile(c, sp)
			changed = true
		}
	}

	if changed {
		s.rebuildOrder()
	}
}

// ensureTile creates or recreates the tile at c to the given spec.
// Promotion to Interactive seeds vertex heights from the old surface;
// the seeds are pinned so relaxation keeps them until real data lands.
func (s *Streamer) ensureTile(c hex.Coord, sp spec) {
	old := s.tiles[c]
	if old != nil {
		s.sched.Remove(c)
		if old.Class > sp.class {
			s.metrics.Promotions++
		}
	}
	cx, cz := hex.Center(c, s.cfg.Rings.TileRadius)

	var t *tile.Tile
	if sp.class == tile.ClassInteractive {
		t = tile.NewInteractive(c, s.cfg.Rings.VertexSpacing, s.cfg.Rings.TileRadius, cx, cz)
		if old != nil {
			seedFromSurface(t, old)
		}
	} else {
		t = tile.NewCoarse(sp.class, c, s.cfg.Rings.TileRadius*float64(sp.scale), cx, cz, sp.scale, sp.mode)
	}
	s.tiles[c] = t
	s.metrics.TilesCreated++

	if s.loadFromCache(t) {
		s.markDirty(c)
		s.signalRedraw(t)
		return
	}
	s.markDirty(c)
	s.maybeQueue(t)
}

func seedFromSurface(t, old *tile.Tile) {
	for i := 0; i < t.VertexCount(); i++ {
		x, z := t.VertexWorld(i)
		if h, ok := old.SampleHeight(x, z); ok {
			t.Heights[i] = h
			t.Lock(i)
		}
	}
}

func (s *Streamer) evict(c hex.Coord) {
	delete(s.tiles, c)
	s.sched.Remove(c)
	delete(s.dirty, c)
	s.metrics.TilesEvicted++
}

func (s *Streamer) rebuildOrder() {
	s.order = s.order[:0]
	for c := range s.tiles {
		s.order = append(s.order, c)
	}
	hex.SortByDist(s.observer, s.order)
}

// TileAt returns the tile covering the coordinate, walking the farfield
// stride tiers when no exact tile exists. It satisfies the stitcher's
// source interface.
func (s *Streamer) TileAt(c hex.Coord) *tile.Tile {
	if t, ok := s.tiles[c]; ok {
		return t
	}
	stride := 1
	step := max(2, s.cfg.Rings.FarfieldStride)
	for i := 0; i < 2; i++ {
		stride *= step
		if t, ok := s.tiles[snapCoord(c, stride)]; ok {
			return t
		}
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
