package tile

// Phases returns the ordered phase list for this tile's class.
func (t *Tile) Phases() []Phase {
	if t.Class == ClassInteractive {
		return []Phase{PhaseSeed, PhaseEdge, PhaseFull}
	}
	return []Phase{PhaseFull}
}

// NextPhase returns the first phase that has not completed, or 0 when the
// tile is fully populated.
func (t *Tile) NextPhase() Phase {
	if t.Class == ClassInteractive {
		switch {
		case !t.SeedDone:
			return PhaseSeed
		case !t.EdgeDone:
			return PhaseEdge
		case !t.FullDone:
			return PhaseFull
		}
		return 0
	}
	if !t.FullDone {
		return PhaseFull
	}
	return 0
}

// CanQueue reports whether phase p may be queued now. Phase order is
// monotonic: a later phase is never admitted before its predecessor
// completed.
func (t *Tile) CanQueue(p Phase) bool {
	if t.Populating {
		return false
	}
	return t.NextPhase() == p
}

// PhaseDone reports completion of phase p.
func (t *Tile) PhaseDone(p Phase) bool {
	switch p {
	case PhaseSeed:
		return t.SeedDone
	case PhaseEdge:
		return t.EdgeDone
	case PhaseFull:
		return t.FullDone
	}
	return false
}

// CompletePhase marks p done. Completion is monotonic; completing a later
// phase implies its predecessors.
func (t *Tile) CompletePhase(p Phase) {
	switch p {
	case PhaseSeed:
		t.SeedDone = true
	case PhaseEdge:
		t.SeedDone = true
		t.EdgeDone = true
	case PhaseFull:
		if t.Class == ClassInteractive {
			t.SeedDone = true
			t.EdgeDone = true
		}
		t.FullDone = true
	}
}

// TerminalDone reports whether the final phase for the class completed.
func (t *Tile) TerminalDone() bool { return t.FullDone }

// PhaseIndices returns the vertex indices a phase must fetch. Seed covers
// the center and the six corner tips, Edge the six side midpoints, Full
// every vertex still unknown.
func (t *Tile) PhaseIndices(p Phase) []int {
	switch p {
	case PhaseSeed:
		out := []int{0}
		return append(out, t.TipIndices()...)
	case PhaseEdge:
		return t.SideMidIndices()
	case PhaseFull:
		if t.Class == ClassFarfield {
			return t.sampledUnknown()
		}
		return t.UnknownIndices()
	}
	return nil
}

// sampledUnknown applies the farfield sparse sampling mode.
func (t *Tile) sampledUnknown() []int {
	switch t.Mode {
	case SampleCenter:
		if !t.Ready(0) {
			return []int{0}
		}
		return nil
	case SampleTips:
		out := make([]int, 0, 7)
		if !t.Ready(0) {
			out = append(out, 0)
		}
		for _, i := range t.TipIndices() {
			if !t.Ready(i) {
				out = append(out, i)
			}
		}
		return out
	default:
		return t.UnknownIndices()
	}
}

// Retry bumps and returns the retry counter for phase p.
func (t *Tile) Retry(p Phase) int {
	t.Retries[p]++
	return t.Retries[p]
}
